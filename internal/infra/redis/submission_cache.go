package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"quiz-exercise-service/internal/domain"
)

// SubmissionCache keeps pending submissions in Redis so several instances share one buffer.
// Layout:
//
//	HSET quiz:{exerciseID}:submissions {participantID} {submission json}
//	HSET quiz:{exerciseID}:submitted   {participantID} 1
//	HSET quiz:{exerciseID}:corrupt     {participantID} {raw value that failed to decode}
//	SADD quiz:submissions:exercises    {exerciseID}
//
// Batch joins are held in process memory by the coordinator. An entry left by a participant whose join
// was lost in a restart is finalized at the latest once the quiz duration has passed since its last write.
type SubmissionCache struct {
	client *redis.Client
}

// putScript refuses to overwrite a submitted entry.
var putScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if ARGV[3] == '1' then
  redis.call('HSET', KEYS[2], ARGV[1], '1')
end
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// removeScript deletes an entry only if it still holds the value the caller read.
var removeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[3], ARGV[3])
end
return 1
`)

// quarantineScript moves an undecodable entry aside, again only if it is unchanged.
var quarantineScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[4], ARGV[1], ARGV[2])
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[3], ARGV[3])
end
return 1
`)

// evictScript drops an exercise from the index once it has no entries left.
var evictScript = redis.NewScript(`
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

func NewSubmissionCache(client *redis.Client) *SubmissionCache {
	return &SubmissionCache{client: client}
}

func (c *SubmissionCache) Put(ctx context.Context, exerciseID, participantID string, sub domain.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	flag := "0"
	if sub.Submitted {
		flag = "1"
	}
	keys := []string{submissionsKey(exerciseID), submittedKey(exerciseID), exercisesKey}
	stored, err := putScript.Run(ctx, c.client, keys, participantID, payload, flag, exerciseID).Int()
	if err != nil {
		return fmt.Errorf("put submission: %w", err)
	}
	if stored == 0 {
		return fmt.Errorf("exercise %s participant %s: %w", exerciseID, participantID, domain.ErrAlreadySubmitted)
	}
	return nil
}

func (c *SubmissionCache) Get(ctx context.Context, exerciseID, participantID string) (domain.Submission, bool, error) {
	raw, err := c.client.HGet(ctx, submissionsKey(exerciseID), participantID).Result()
	if err == redis.Nil {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("get submission: %w", err)
	}
	var sub domain.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return domain.Submission{}, false, fmt.Errorf("decode submission: %w", err)
	}
	return sub, true, nil
}

// DrainFinalizable removes and returns every finalizable entry. Entries that fail to decode are moved to the
// corrupt hash and reported in the returned error; the remaining entries are still drained.
func (c *SubmissionCache) DrainFinalizable(ctx context.Context, exerciseID string, ended func(sub domain.Submission) bool) ([]domain.Submission, error) {
	entries, err := c.client.HGetAll(ctx, submissionsKey(exerciseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}
	if len(entries) == 0 {
		if err := evictScript.Run(ctx, c.client, []string{submissionsKey(exerciseID), exercisesKey}, exerciseID).Err(); err != nil {
			return nil, fmt.Errorf("evict exercise: %w", err)
		}
		return nil, nil
	}

	keys := []string{submissionsKey(exerciseID), submittedKey(exerciseID), exercisesKey, corruptKey(exerciseID)}
	var (
		drained []domain.Submission
		errs    []error
	)
	for participantID, raw := range entries {
		var sub domain.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			errs = append(errs, fmt.Errorf("decode submission of %s: %w", participantID, err))
			if err := quarantineScript.Run(ctx, c.client, keys, participantID, raw, exerciseID).Err(); err != nil {
				errs = append(errs, fmt.Errorf("quarantine submission of %s: %w", participantID, err))
			}
			continue
		}
		if !sub.Submitted && !ended(sub) {
			continue
		}
		removed, err := removeScript.Run(ctx, c.client, keys[:3], participantID, raw, exerciseID).Int()
		if err != nil {
			errs = append(errs, fmt.Errorf("remove submission of %s: %w", participantID, err))
			continue
		}
		if removed == 1 {
			drained = append(drained, sub)
		}
	}
	sort.Slice(drained, func(i, j int) bool { return drained[i].ParticipantID < drained[j].ParticipantID })
	return drained, errors.Join(errs...)
}

// Corrupt returns the raw values of entries that could not be decoded, keyed by participant.
func (c *SubmissionCache) Corrupt(ctx context.Context, exerciseID string) (map[string]string, error) {
	entries, err := c.client.HGetAll(ctx, corruptKey(exerciseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read corrupt submissions: %w", err)
	}
	return entries, nil
}

func (c *SubmissionCache) ExerciseIDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.SMembers(ctx, exercisesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *SubmissionCache) ClearExercise(ctx context.Context, exerciseID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, submissionsKey(exerciseID), submittedKey(exerciseID), corruptKey(exerciseID))
	pipe.SRem(ctx, exercisesKey, exerciseID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear exercise %s: %w", exerciseID, err)
	}
	return nil
}

func (c *SubmissionCache) ClearAll(ctx context.Context) error {
	ids, err := c.client.SMembers(ctx, exercisesKey).Result()
	if err != nil {
		return fmt.Errorf("list exercises: %w", err)
	}
	pipe := c.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, submissionsKey(id), submittedKey(id), corruptKey(id))
	}
	pipe.Del(ctx, exercisesKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}
	return nil
}

const exercisesKey = "quiz:submissions:exercises"

func submissionsKey(exerciseID string) string {
	return "quiz:" + exerciseID + ":submissions"
}

func submittedKey(exerciseID string) string {
	return "quiz:" + exerciseID + ":submitted"
}

func corruptKey(exerciseID string) string {
	return "quiz:" + exerciseID + ":corrupt"
}
