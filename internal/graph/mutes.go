package graph

import "context"

// Mutes are a viewer-maintained suppression list: a muted author's public
// posts disappear from the viewer's home and profile feeds but stay reachable
// by direct link. Kept in redis sets, one per viewer.

func muteKey(viewerID string) string {
	return "mutes:" + viewerID
}

func (s *Service) Mute(ctx context.Context, viewerID, authorID string) error {
	if _, err := s.FindUser(ctx, authorID); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, muteKey(viewerID), authorID).Err()
}

func (s *Service) Unmute(ctx context.Context, viewerID, authorID string) error {
	return s.redis.SRem(ctx, muteKey(viewerID), authorID).Err()
}

// Suppressed implements visibility.FeedFilter.
func (s *Service) Suppressed(ctx context.Context, viewerID, authorID string) (bool, error) {
	if s.redis == nil {
		return false, nil
	}
	return s.redis.SIsMember(ctx, muteKey(viewerID), authorID).Result()
}
