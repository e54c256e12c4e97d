package httpserver

import "time"

type Config struct {
	Addr            string        `env:"OPS_ADDR" envDefault:":8081"`
	ReadTimeout     time.Duration `env:"OPS_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"OPS_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"OPS_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"OPS_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}
