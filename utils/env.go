package utils

import (
	"os"

	"github.com/joho/godotenv"
)

func LoadEnv() {
	godotenv.Load()
}

// Regkey is the shared secret that gates worker callbacks and admin-only
// routes.
func Regkey() string {
	return os.Getenv("regkey")
}
