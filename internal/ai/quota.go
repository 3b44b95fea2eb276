package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserGeminiQuota tracks per-user daily model usage.
type UserGeminiQuota struct {
	UserID          string    `bson:"user_id"`
	DailyTokenLimit int       `bson:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today"`
	LastResetDate   time.Time `bson:"last_reset_date"`
	RequestsToday   int       `bson:"requests_today"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

var ErrQuotaExceeded = errors.New("daily quota exceeded")

const defaultDailyTokenLimit = 100000

// CheckUserQuota verifies the user can consume estimatedTokens today and
// records the usage. Counters roll over at UTC midnight.
func CheckUserQuota(ctx context.Context, userID string, estimatedTokens int, db *mongo.Database) error {
	col := db.Collection("gemini_quotas")

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Reset counters if last reset was before today
	_, _ = col.UpdateOne(ctx, bson.M{
		"user_id":         userID,
		"last_reset_date": bson.M{"$lt": today},
	}, bson.M{
		"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"updated_at":        now,
		},
	})

	var quota UserGeminiQuota
	err := col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&quota)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return err
		}
		quota = UserGeminiQuota{
			UserID:          userID,
			DailyTokenLimit: defaultDailyTokenLimit,
			LastResetDate:   today,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := col.InsertOne(ctx, quota); err != nil {
			return err
		}
	}

	if quota.TokensUsedToday+estimatedTokens > quota.DailyTokenLimit {
		return ErrQuotaExceeded
	}

	_, err = col.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{
				"tokens_used_today": estimatedTokens,
				"requests_today":    1,
			},
			"$set": bson.M{"updated_at": now},
		},
	)
	return err
}

// GetUserQuotaStatus returns the current quota record for a user.
func GetUserQuotaStatus(ctx context.Context, userID string, db *mongo.Database) (*UserGeminiQuota, error) {
	var quota UserGeminiQuota
	err := db.Collection("gemini_quotas").FindOne(ctx, bson.M{"user_id": userID}).Decode(&quota)
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

// SetUserQuotaLimit sets the daily token limit for a user.
func SetUserQuotaLimit(ctx context.Context, userID string, dailyLimit int, db *mongo.Database) error {
	now := time.Now()
	_, err := db.Collection("gemini_quotas").UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"daily_token_limit": dailyLimit,
			"updated_at":        now,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}
