package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	PostKeyPrefix        = "post:%d"
	RegionPostsKeyPrefix = "region:%s:posts"
)

const (
	UserTTL        = 5 * time.Minute
	PostTTL        = 30 * time.Minute
	RegionPostsTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func RegionPostsKey(region string) string {
	return fmt.Sprintf(RegionPostsKeyPrefix, region)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint, region string) {
	Invalidate(ctx, PostKey(postID), RegionPostsKey(region))
}

// Aside implements the cache-aside pattern: return the cached value under key
// if present, otherwise call fill, cache its result for ttl, and return it.
// A nil or unreachable Redis degrades to calling fill directly.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, fill func() (T, error)) (T, error) {
	var zero T
	if client != nil {
		if raw, err := client.Get(ctx, key).Bytes(); err == nil {
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			// Corrupt entry: drop it and fall through to fill.
			client.Del(ctx, key)
		}
	}

	val, err := fill()
	if err != nil {
		return zero, err
	}

	if client != nil {
		if raw, err := json.Marshal(val); err == nil {
			client.Set(ctx, key, raw, ttl)
		}
	}
	return val, nil
}
