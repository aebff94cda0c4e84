package redis

import (
	"context"
	"errors"

	redislib "github.com/redis/go-redis/v9"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

const participantsKey = "participants"

// ParticipantDirectory reads display names from the participants hash that
// the identity system maintains, falling back to another directory on a miss.
type ParticipantDirectory struct {
	client   redislib.UniversalClient
	key      string
	fallback usecase.ParticipantDirectory
}

func NewParticipantDirectory(client redislib.UniversalClient, fallback usecase.ParticipantDirectory) *ParticipantDirectory {
	return &ParticipantDirectory{client: client, key: participantsKey, fallback: fallback}
}

func (d *ParticipantDirectory) DisplayName(ctx context.Context, participantID string) (string, error) {
	name, err := d.client.HGet(ctx, d.key, participantID).Result()
	switch {
	case err == nil && name != "":
		return name, nil
	case err != nil && !errors.Is(err, redislib.Nil):
		return "", err
	}
	if d.fallback != nil {
		return d.fallback.DisplayName(ctx, participantID)
	}
	return "", nil
}

// Register stores a display name.
func (d *ParticipantDirectory) Register(ctx context.Context, participantID, name string) error {
	return d.client.HSet(ctx, d.key, participantID, name).Err()
}
