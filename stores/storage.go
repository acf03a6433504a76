package stores

import (
	"screenshare/core"
	"screenshare/stores/memory"

	"github.com/sirupsen/logrus"
)

// GetRoomRegistry returns the registry for storageType. Rooms live only as
// long as the process, so every type resolves to the in-memory registry.
func GetRoomRegistry(storageType string) core.RoomRegistry {
	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "", "memory":
		storageField["storageType"] = "in-memory"
	default:
		logrus.WithFields(storageField).Warn("Unsupported storage type, falling back to in-memory")
		storageField["storageType"] = "in-memory"
	}

	logrus.WithFields(storageField).Info("Use storage")
	return memory.NewRoomRegistry()
}
