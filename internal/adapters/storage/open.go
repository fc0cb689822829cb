package storage

import (
	"fmt"

	"github.com/alejandrodnm/gambot/internal/ports"
)

// Open crea el ledger según el driver configurado: "sqlite" (default) o
// "postgres". Ambos implementan el mismo contrato transaccional.
func Open(driver, dsn string) (ports.Ledger, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteLedger(dsn)
	case "postgres":
		return NewPostgresLedger(dsn)
	default:
		return nil, fmt.Errorf("storage.Open: unknown driver %q", driver)
	}
}
