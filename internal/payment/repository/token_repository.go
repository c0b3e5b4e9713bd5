package repository

import (
	"context"

	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tokenRepo struct{}

func ProvideTokens() domain.TokenRepository {
	return &tokenRepo{}
}

func (r *tokenRepo) Find(ctx context.Context, db *gorm.DB, provider string) (*domain.CachedToken, error) {
	var token domain.CachedToken
	err := db.WithContext(ctx).Raw(
		`SELECT provider, id_token, refresh_token, token_type, expires_in, version, updated_at
		 FROM gateway_tokens WHERE provider = ?`,
		provider,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.Provider == "" {
		return nil, nil
	}
	return &token, nil
}

func (r *tokenRepo) Save(ctx context.Context, db *gorm.DB, token *domain.CachedToken, expectedVersion int64) (bool, error) {
	if expectedVersion <= 0 {
		token.Version = 1
		res := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoNothing: true,
		}).Create(token)
		if res.Error != nil {
			token.Version = 0
			return false, res.Error
		}
		if res.RowsAffected == 0 {
			token.Version = 0
			return false, nil
		}
		return true, nil
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_tokens
		 SET id_token = ?, refresh_token = ?, token_type = ?, expires_in = ?,
			version = version + 1, updated_at = ?
		 WHERE provider = ? AND version = ?`,
		token.IDToken,
		token.RefreshToken,
		token.TokenType,
		token.ExpiresIn,
		token.UpdatedAt,
		token.Provider,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	token.Version = expectedVersion + 1
	return true, nil
}
