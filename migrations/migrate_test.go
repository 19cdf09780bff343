package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_catalog.sql",
		"002_bookings.sql",
		"003_slot_capacity_adjustments.sql",
	}, names)
}

func TestMigrations_DeclareLedgerConstraints(t *testing.T) {
	raw, err := migrationFiles.ReadFile("002_bookings.sql")
	require.NoError(t, err)

	sql := string(raw)
	assert.Contains(t, sql, "reservation_id         VARCHAR(36) UNIQUE")
	assert.Contains(t, sql, "booking_reference      VARCHAR(50) NOT NULL UNIQUE")
}
