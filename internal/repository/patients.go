package repository

import (
	"context"
	"database/sql"
	"fmt"

	"neovance-monitor/internal/models"

	"go.uber.org/zap"
)

// PatientRepository 患者档案仓库
type PatientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPatientRepository 创建患者档案仓库
func NewPatientRepository(db *sql.DB, logger *zap.Logger) *PatientRepository {
	return &PatientRepository{
		db:     db,
		logger: logger,
	}
}

const patientColumns = `
	mrn,
	tenant_id,
	full_name,
	ga_weeks,
	ga_days,
	intrapartum_temp,
	rom_hours,
	gbs_status,
	antibiotic_type,
	clinical_exam
`

// GetPatient 根据 mrn 获取患者档案（需验证 tenant_id）
func (r *PatientRepository) GetPatient(ctx context.Context, tenantID, mrn string) (*models.Patient, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if mrn == "" {
		return nil, fmt.Errorf("mrn is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM patients
		WHERE mrn = $1
		  AND tenant_id = $2
	`, patientColumns)

	p, err := scanPatient(r.db.QueryRowContext(ctx, query, mrn, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: mrn=%s, tenant_id=%s", mrn, tenantID)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

// ListPatients 获取租户下全部在监患者
func (r *PatientRepository) ListPatients(ctx context.Context, tenantID string) ([]models.Patient, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM patients
		WHERE tenant_id = $1
		ORDER BY mrn ASC
	`, patientColumns)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	patients := []models.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}

	return patients, nil
}

// UpsertPatient 写入或更新患者档案（用于种子数据与入院登记）
func (r *PatientRepository) UpsertPatient(ctx context.Context, p *models.Patient) error {
	if p == nil {
		return fmt.Errorf("patient is required")
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	query := `
		INSERT INTO patients (
			mrn,
			tenant_id,
			full_name,
			ga_weeks,
			ga_days,
			intrapartum_temp,
			rom_hours,
			gbs_status,
			antibiotic_type,
			clinical_exam,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP
		)
		ON CONFLICT (mrn) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			ga_weeks = EXCLUDED.ga_weeks,
			ga_days = EXCLUDED.ga_days,
			intrapartum_temp = EXCLUDED.intrapartum_temp,
			rom_hours = EXCLUDED.rom_hours,
			gbs_status = EXCLUDED.gbs_status,
			antibiotic_type = EXCLUDED.antibiotic_type,
			clinical_exam = EXCLUDED.clinical_exam,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		p.MRN,
		p.TenantID,
		p.FullName,
		p.Maternal.GAWeeks,
		p.Maternal.GADays,
		p.Maternal.IntrapartumTemp,
		p.Maternal.ROMHours,
		string(p.Maternal.GBSStatus),
		p.Maternal.AntibioticType,
		string(p.Maternal.ClinicalExam),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert patient: %w", err)
	}

	return nil
}

// SeedDemoRoster 写入演示病区种子数据，已存在的记录被覆盖
func (r *PatientRepository) SeedDemoRoster(ctx context.Context, tenantID string) error {
	for _, p := range models.DemoRoster(tenantID) {
		p := p
		if err := r.UpsertPatient(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed patient %s: %w", p.MRN, err)
		}
		r.logger.Debug("seeded demo patient", zap.String("mrn", p.MRN))
	}
	return nil
}

func scanPatient(s scanner) (*models.Patient, error) {
	var p models.Patient
	var gbsStatus, clinicalExam string

	err := s.Scan(
		&p.MRN,
		&p.TenantID,
		&p.FullName,
		&p.Maternal.GAWeeks,
		&p.Maternal.GADays,
		&p.Maternal.IntrapartumTemp,
		&p.Maternal.ROMHours,
		&gbsStatus,
		&p.Maternal.AntibioticType,
		&clinicalExam,
	)
	if err != nil {
		return nil, err
	}

	p.Maternal.GBSStatus = models.GBSStatus(gbsStatus)
	p.Maternal.ClinicalExam = models.ClinicalExam(clinicalExam)
	return &p, nil
}
