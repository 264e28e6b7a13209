package main

import (
	"WholeWellness/internal/repository"
	"WholeWellness/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.Sync()

	repository.RunGenerate()
}
