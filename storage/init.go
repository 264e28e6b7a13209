package storage

import (
	"WholeWellness/storage/database"
	"WholeWellness/storage/mq"
	"WholeWellness/storage/redis"
)

// Init 统一初始化 storage 层：Database -> Redis -> MQ
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	return mq.Init()
}
