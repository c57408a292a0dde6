package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps blocking queue reads and pub/sub subscriptions on
// separate connections so neither can starve the other.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queueClient, err := dialRedis(ctx, opt, "studyflow-queue")
	if err != nil {
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	pubsubClient, err := dialRedis(ctx, opt, "studyflow-pubsub")
	if err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func dialRedis(ctx context.Context, base *redis.Options, name string) (*redis.Client, error) {
	opt := *base
	opt.ClientName = name
	client := redis.NewClient(&opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
