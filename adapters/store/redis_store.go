package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

// DefaultRedisPrefix namespaces every key the store writes
const DefaultRedisPrefix = "tokenstore:"

// KEYS[1] value index, KEYS[2] token hash
const insertTokenScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], "id", ARGV[1], "value", ARGV[2], "owner", ARGV[3], "issued", ARGV[4], "digest", ARGV[5])
return 1
`

// KEYS[1] token hash; ARGV[1] value index prefix, ARGV[2] token id
const deleteTokenScript = `
local digest = redis.call("HGET", KEYS[1], "digest")
if not digest then
  return 0
end
local value_key = ARGV[1] .. digest
if redis.call("GET", value_key) == ARGV[2] then
  redis.call("DEL", value_key)
end
redis.call("DEL", KEYS[1])
return 1
`

// KEYS[1] identity reference list, KEYS[2] identity registry
const appendReferenceScript = `
local refs = redis.call("LRANGE", KEYS[1], 0, -1)
for _, ref in ipairs(refs) do
  if ref == ARGV[1] then
    return 0
  end
end
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`

var (
	insertTokenLua     = redis.NewScript(insertTokenScript)
	deleteTokenLua     = redis.NewScript(deleteTokenScript)
	appendReferenceLua = redis.NewScript(appendReferenceScript)
)

// RedisStore keeps token records as hashes, a value index for uniqueness and
// one list per identity holding its references in issuance order.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) tokenKey(id string) string {
	return s.prefix + "token:" + id
}

func (s *RedisStore) valuePrefix() string {
	return s.prefix + "value:"
}

func (s *RedisStore) valueKey(value string) string {
	return s.valuePrefix() + digest(value)
}

func (s *RedisStore) referencesKey(identityID string) string {
	return s.prefix + "identity:" + identityID + ":refs"
}

func (s *RedisStore) registryKey() string {
	return s.prefix + "identities"
}

// digest keeps raw secrets out of key names
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// FindByValue looks a token up through the value index
func (s *RedisStore) FindByValue(ctx context.Context, value string) (core.Token, bool, error) {
	id, err := s.client.Get(ctx, s.valueKey(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Token{}, false, nil
		}
		return core.Token{}, false, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	token, ok, err := s.loadToken(ctx, id)
	if err != nil || !ok {
		return core.Token{}, false, err
	}
	if token.Value != value {
		return core.Token{}, false, nil
	}
	return token, true, nil
}

// Insert claims the value index and writes the token hash in one script
func (s *RedisStore) Insert(ctx context.Context, token core.Token) error {
	claimed, err := insertTokenLua.Run(ctx, s.client,
		[]string{s.valueKey(token.Value), s.tokenKey(token.ID)},
		token.ID,
		token.Value,
		token.OwnerID,
		strconv.FormatInt(token.IssuedAt.UTC().UnixMilli(), 10),
		digest(token.Value),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if claimed == 0 {
		return core.ErrAlreadyExists
	}
	return nil
}

// DeleteByID removes the token hash and its value index entry
func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	err := deleteTokenLua.Run(ctx, s.client,
		[]string{s.tokenKey(id)},
		s.valuePrefix(),
		id,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendReference pushes tokenID onto the identity list unless present
func (s *RedisStore) AppendReference(ctx context.Context, identityID, tokenID string) error {
	err := appendReferenceLua.Run(ctx, s.client,
		[]string{s.referencesKey(identityID), s.registryKey()},
		tokenID,
		identityID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// FindReference resolves the identity's references and matches value
func (s *RedisStore) FindReference(ctx context.Context, identityID, value string) (core.Token, bool, error) {
	tokens, err := s.resolve(ctx, identityID)
	if err != nil {
		return core.Token{}, false, err
	}
	for _, token := range tokens {
		if token.Value == value {
			return token, true, nil
		}
	}
	return core.Token{}, false, nil
}

// ListReferences resolves the identity's references in list order
func (s *RedisStore) ListReferences(ctx context.Context, identityID string, offset, limit int) ([]core.Token, error) {
	tokens, err := s.resolve(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return window(tokens, offset, limit), nil
}

// PullReference removes tokenID from every registered identity list
func (s *RedisStore) PullReference(ctx context.Context, tokenID string) (int64, error) {
	identityIDs, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if len(identityIDs) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(identityIDs))
	for i, identityID := range identityIDs {
		cmds[i] = pipe.LRem(ctx, s.referencesKey(identityID), 0, tokenID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	var pulled int64
	for _, cmd := range cmds {
		if cmd.Val() > 0 {
			pulled++
		}
	}
	return pulled, nil
}

// PullOwnedReference removes tokenID from a single identity list
func (s *RedisStore) PullOwnedReference(ctx context.Context, identityID, tokenID string) (int64, error) {
	removed, err := s.client.LRem(ctx, s.referencesKey(identityID), 0, tokenID).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if removed > 0 {
		return 1, nil
	}
	return 0, nil
}

// Identity returns the identity's raw reference list
func (s *RedisStore) Identity(ctx context.Context, identityID string) (core.Identity, error) {
	refs, err := s.client.LRange(ctx, s.referencesKey(identityID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if refs == nil {
		refs = []string{}
	}
	return core.Identity{ID: identityID, References: refs}, nil
}

// GetClient returns the Redis client
// This is used by the binary to share the client with the Watermill publisher
func (s *RedisStore) GetClient() redis.UniversalClient {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) resolve(ctx context.Context, identityID string) ([]core.Token, error) {
	refs, err := s.client.LRange(ctx, s.referencesKey(identityID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []core.Token{}, nil
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if len(refs) == 0 {
		return []core.Token{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(refs))
	for i, ref := range refs {
		cmds[i] = pipe.HGetAll(ctx, s.tokenKey(ref))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	tokens := make([]core.Token, 0, len(refs))
	for _, cmd := range cmds {
		token, ok := decodeToken(cmd.Val())
		if ok {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (s *RedisStore) loadToken(ctx context.Context, id string) (core.Token, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return core.Token{}, false, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	token, ok := decodeToken(fields)
	return token, ok, nil
}

func decodeToken(fields map[string]string) (core.Token, bool) {
	if len(fields) == 0 || fields["id"] == "" {
		return core.Token{}, false
	}
	token := core.Token{
		ID:      fields["id"],
		Value:   fields["value"],
		OwnerID: fields["owner"],
	}
	if millis, err := strconv.ParseInt(fields["issued"], 10, 64); err == nil {
		token.IssuedAt = time.UnixMilli(millis).UTC()
	}
	return token, true
}

var _ ports.Repositories = (*RedisStore)(nil)
