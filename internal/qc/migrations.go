package qc

import (
	"database/sql"

	"github.com/LabGraphTeam/labgraph/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create qc measurement and reference tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS qc_measurements (
						id               TEXT PRIMARY KEY,
						analyte          TEXT NOT NULL,
						level            TEXT NOT NULL,
						value            REAL NOT NULL,
						target_mean      REAL NOT NULL,
						target_sd        REAL NOT NULL,
						unit             TEXT NOT NULL DEFAULT '',
						rule_code        TEXT NOT NULL,
						rule_description TEXT NOT NULL,
						sigma_deviation  REAL NOT NULL,
						violation        INTEGER NOT NULL DEFAULT 0,
						measured_at      DATETIME NOT NULL,
						created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_qc_measurements_group ON qc_measurements(analyte, level, measured_at)`,
					`CREATE INDEX IF NOT EXISTS idx_qc_measurements_measured ON qc_measurements(measured_at)`,

					`CREATE TABLE IF NOT EXISTS qc_reference_ranges (
						analyte     TEXT NOT NULL,
						level       TEXT NOT NULL,
						target_mean REAL NOT NULL,
						target_sd   REAL NOT NULL CHECK (target_sd > 0),
						unit        TEXT NOT NULL DEFAULT '',
						updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						PRIMARY KEY (analyte, level)
					)`,
				}
				for _, s := range stmts {
					if _, err := tx.Exec(s); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create qc reports table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS qc_reports (
						id                   TEXT PRIMARY KEY,
						analyte              TEXT NOT NULL,
						level                TEXT NOT NULL,
						window_start         DATETIME NOT NULL,
						window_end           DATETIME NOT NULL,
						target_mean          REAL NOT NULL,
						calculated_mean      REAL NOT NULL,
						calculated_sd        REAL NOT NULL,
						inaccuracy_pct       REAL NOT NULL,
						systematic_error_pct REAL NOT NULL,
						random_error_pct     REAL NOT NULL,
						total_error_pct      REAL NOT NULL,
						sample_size          INTEGER NOT NULL,
						westgard_hits        TEXT NOT NULL DEFAULT '[]',
						generated_at         DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_qc_reports_group ON qc_reports(analyte, level, generated_at)`,
				}
				for _, s := range stmts {
					if _, err := tx.Exec(s); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
