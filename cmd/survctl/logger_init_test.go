package main

import "github.com/okian/survcast/pkg/logger"

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}
