// Command eyemoney-backup exports and imports encrypted backups of the
// tracker dataset directly against a state database, without going
// through a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"eyemoney/internal/backup"
	"eyemoney/internal/log"
	"eyemoney/internal/persist"
	"eyemoney/internal/store"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath   = flag.String("db", "./data/eyemoney.db", "path to the state database")
		key      = flag.String("key", "", "state slot key (default: the engine slot)")
		password = flag.String("password", "", "backup password (or BACKUP_PASSWORD env)")
		file     = flag.String("file", "", "backup file (default: export-YYYY-MM-DD.bak)")
	)
	flag.Parse()

	log.Setup(os.Getenv("LOG_LEVEL"))
	logger := log.New("eyemoney-backup")

	if *password == "" {
		*password = os.Getenv("BACKUP_PASSWORD")
	}
	if *password == "" {
		logger.Error("no password given; use -password or BACKUP_PASSWORD")
		os.Exit(1)
	}

	var err error
	switch flag.Arg(0) {
	case "export":
		err = runExport(logger, *dbPath, *key, *password, *file)
	case "import":
		err = runImport(logger, *dbPath, *key, *password, *file)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [flags] export|import\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("backup operation failed", "error", err)
		os.Exit(1)
	}
}

func runExport(logger *log.Logger, dbPath, key, password, file string) error {
	ctx := context.Background()
	slot, err := persist.NewSQLiteSlot(dbPath, key)
	if err != nil {
		return err
	}
	defer slot.Close()

	blob, err := slot.Load(ctx)
	if err != nil {
		return err
	}
	st, err := store.FromJSON(blob)
	if err != nil {
		return fmt.Errorf("stored dataset is unreadable: %w", err)
	}
	plaintext, err := st.ToJSON()
	if err != nil {
		return err
	}
	envelope, err := backup.Encrypt(password, plaintext)
	if err != nil {
		return err
	}

	if file == "" {
		file = fmt.Sprintf("export-%s.bak", time.Now().Format("2006-01-02"))
	}
	if err := os.WriteFile(file, envelope, 0600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	logger.Info("backup written", "file", file, "bytes", len(envelope))
	return nil
}

func runImport(logger *log.Logger, dbPath, key, password, file string) error {
	if file == "" {
		return fmt.Errorf("import needs -file")
	}
	envelope, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	version, err := backup.Version(envelope)
	if err != nil {
		return err
	}
	logger.Info("restoring backup", "file", file, "format", version)

	plaintext, err := backup.Decrypt(password, envelope)
	if err != nil {
		return err
	}
	st, err := store.FromJSON(plaintext)
	if err != nil {
		return fmt.Errorf("backup payload is unreadable: %w", err)
	}
	blob, err := st.ToJSON()
	if err != nil {
		return err
	}

	ctx := context.Background()
	slot, err := persist.NewSQLiteSlot(dbPath, key)
	if err != nil {
		return err
	}
	defer slot.Close()
	if err := slot.Save(ctx, blob); err != nil {
		return err
	}
	logger.Info("backup restored",
		"templates", len(st.Templates()),
		"payments", len(st.Payments()))
	return nil
}
