package stores

import (
	"os"
	"whiteboard-server/core"
	"whiteboard-server/pubsub"
	"whiteboard-server/stores/filesystem"
	"whiteboard-server/stores/memory"
	redisstore "whiteboard-server/stores/redis"
	"whiteboard-server/stores/sqlite"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func GetDocumentStore() core.DocumentStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.DocumentStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		storageField["basePath"] = basePath
		store = filesystem.NewDocumentStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewDocumentStore(dataSourceName)
	default:
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use document storage")
	return store
}

// GetRealtimeStores wires the room state stores and the message bus. With
// REDIS_ADDR set, rooms live in redis and events fan out over its pub/sub
// channel so multiple server processes share state; otherwise everything
// stays in process memory with a local bus.
func GetRealtimeStores() (core.BoardStore, core.PresenceStore, core.MessageBus) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		logrus.WithField("realtimeStore", "in-memory").Info("Use realtime storage")
		rooms := memory.NewRoomStore(0, 0)
		return rooms, rooms, pubsub.NewLocalBus()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	logrus.WithFields(logrus.Fields{
		"realtimeStore": "redis",
		"addr":          redisAddr,
	}).Info("Use realtime storage")
	rooms := redisstore.NewRoomStore(rdb, 0, 0)
	return rooms, rooms, pubsub.NewRedisBus(rdb)
}
