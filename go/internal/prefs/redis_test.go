package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisStoreTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *redisStore
}

func (s *RedisStoreTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	store, err := NewRedis(&Config{
		RedisClient: s.client,
		Scope:       "client-1",
	})
	s.Require().NoError(err)
	s.store = store
}

func (s *RedisStoreTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisStoreTestSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}

func (s *RedisStoreTestSuite) TestSetAndGet() {
	err := s.store.Set(context.Background(), "selected_team", "team2")
	s.Require().NoError(err)

	val, err := s.store.Get(context.Background(), "selected_team")
	s.Require().NoError(err)
	s.Equal("team2", val)
}

func (s *RedisStoreTestSuite) TestGetMissingReturnsEmpty() {
	val, err := s.store.Get(context.Background(), "never_set")
	s.Require().NoError(err)
	s.Equal("", val)
}

func (s *RedisStoreTestSuite) TestScopesDoNotCollide() {
	other, err := NewRedis(&Config{
		RedisClient: s.client,
		Scope:       "client-2",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Set(context.Background(), "selected_team", "team1"))
	s.Require().NoError(other.Set(context.Background(), "selected_team", "team2"))

	val, err := s.store.Get(context.Background(), "selected_team")
	s.Require().NoError(err)
	s.Equal("team1", val)
}

func (s *RedisStoreTestSuite) TestSetEmptyKeyRejected() {
	s.Require().Error(s.store.Set(context.Background(), "", "x"))
}

func (s *RedisStoreTestSuite) TestNewRedisValidatesConfig() {
	_, err := NewRedis(nil)
	s.Require().Error(err)

	_, err = NewRedis(&Config{})
	s.Require().Error(err)
}
