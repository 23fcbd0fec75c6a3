package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/campuskit/schoolstock-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestItemsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory_items.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_items",
		"FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE SET NULL",
		"CHECK (quantity >= 0)",
		"CHECK (min_stock_level >= 0)",
		"DROP TABLE IF EXISTS inventory_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestTransactionsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory_transactions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_transactions",
		"FOREIGN KEY (item_id) REFERENCES inventory_items(id) ON DELETE RESTRICT",
		"CHECK (quantity > 0)",
		"CHECK (status IN ('pending', 'returned', 'cancelled'))",
		"DROP TABLE IF EXISTS inventory_transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}

	// overdue is derived at read time, never stored as a status
	if strings.Contains(content, "'overdue'") {
		t.Error("transactions migration must not define an overdue status")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
