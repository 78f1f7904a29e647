package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// 排查用脚本：打印某个租户最近的报警记录及医生结局，核对状态迁移是否落库
// 用法: DB_NAME=neonatal_ehr TENANT_ID=demo-nicu go run check_alert_history.go
func main() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "neonatal_ehr"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	tenantID := getEnv("TENANT_ID", "demo-nicu")

	query := `
		SELECT
			a.alert_id,
			a.mrn,
			a.snapshot->>'severity' AS severity,
			a.status,
			a.actor_id,
			a.action,
			a.outcome_confirmed,
			a.outcome_reward,
			a.created_at
		FROM alerts a
		WHERE a.tenant_id = $1
		ORDER BY a.created_at DESC
		LIMIT 50;
	`

	rows, err := db.Query(query, tenantID)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	defer rows.Close()

	fmt.Printf("租户 %s 最近的报警记录：\n", tenantID)
	fmt.Printf("%-40s %-8s %-10s %-12s %-15s %-10s %-10s %-8s %-20s\n",
		"alert_id", "mrn", "severity", "status", "actor", "action", "confirmed", "reward", "created_at")

	var count int
	for rows.Next() {
		var alertID, mrn, status string
		var severity, actor, action sql.NullString
		var confirmed sql.NullBool
		var reward sql.NullFloat64
		var createdAt sql.NullTime

		if err := rows.Scan(&alertID, &mrn, &severity, &status, &actor, &action, &confirmed, &reward, &createdAt); err != nil {
			log.Printf("Failed to scan row: %v", err)
			continue
		}

		fmt.Printf("%-40s %-8s %-10s %-12s %-15s %-10s %-10s %-8s %-20s\n",
			alertID, mrn, getString(severity), status,
			getString(actor), getString(action), getBool(confirmed), getFloat(reward), getDate(createdAt))
		count++
	}

	if err := rows.Err(); err != nil {
		log.Fatalf("Error iterating rows: %v", err)
	}

	if count == 0 {
		fmt.Println("未找到报警记录")
	} else {
		fmt.Printf("\n共 %d 条记录\n", count)
	}
}

func getString(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return "NULL"
}

func getBool(b sql.NullBool) string {
	if b.Valid {
		return strconv.FormatBool(b.Bool)
	}
	return "NULL"
}

func getFloat(n sql.NullFloat64) string {
	if n.Valid {
		return strconv.FormatFloat(n.Float64, 'f', 1, 64)
	}
	return "NULL"
}

func getDate(t sql.NullTime) string {
	if t.Valid {
		return t.Time.Format("2006-01-02 15:04:05")
	}
	return "NULL"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
