package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"crmboard/internal/models"
)

const leadColumns = `id, guest_name, guest_phone, guest_email, price, status, status_name,
		pipeline_id, stage_id, responsible_user_id, created_at, updated_at`

type LeadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	if db == nil {
		log.Fatalf("received nil database connection")
	}
	return &LeadRepository{db: db}
}

// buildLeadFilter собирает WHERE и аргументы; плейсхолдеры нумеруются с $1.
func buildLeadFilter(f models.LeadFilter) (string, []interface{}) {
	conds := []string{"1=1"}
	args := []interface{}{}
	i := 1

	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", i))
		args = append(args, string(*f.Status))
		i++
	}
	if f.PipelineID != nil {
		conds = append(conds, fmt.Sprintf("pipeline_id = $%d", i))
		args = append(args, *f.PipelineID)
		i++
	}
	if f.StageID != nil {
		conds = append(conds, fmt.Sprintf("stage_id = $%d", i))
		args = append(args, *f.StageID)
		i++
	}
	if f.ResponsibleUserID != nil {
		conds = append(conds, fmt.Sprintf("responsible_user_id = $%d", i))
		args = append(args, *f.ResponsibleUserID)
	}
	return strings.Join(conds, " AND "), args
}

func (r *LeadRepository) List(ctx context.Context, f models.LeadFilter, limit, offset int) ([]models.Lead, error) {
	where, args := buildLeadFilter(f)
	n := len(args)
	query := fmt.Sprintf(
		"SELECT %s FROM leads WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		leadColumns, where, n+1, n+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	out := []models.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LeadRepository) Count(ctx context.Context, f models.LeadFilter) (int, error) {
	where, args := buildLeadFilter(f)
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}

func scanLead(rows *sql.Rows) (models.Lead, error) {
	var (
		l                        models.Lead
		name, phone, email, sn   sql.NullString
		price                    sql.NullFloat64
		status                   string
		pipeID, stageID, ownerID sql.NullInt64
	)
	if err := rows.Scan(&l.ID, &name, &phone, &email, &price, &status, &sn,
		&pipeID, &stageID, &ownerID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return l, fmt.Errorf("scan lead: %w", err)
	}
	l.Name = name.String
	l.GuestPhone = phone.String
	l.GuestEmail = email.String
	l.StatusName = sn.String
	l.Status = models.LeadStatus(status)
	if price.Valid {
		p := price.Float64
		l.Price = &p
	}
	l.PipelineID = nullIntPtr(pipeID)
	l.StageID = nullIntPtr(stageID)
	l.ResponsibleUserID = nullIntPtr(ownerID)
	return l, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
