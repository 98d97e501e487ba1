package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

func (s *Store) CreateLoan(ctx context.Context, loan domain.Loan) (*domain.Loan, error) {
	loan.Name = strings.TrimSpace(loan.Name)
	loan.Phone = strings.TrimSpace(loan.Phone)
	if loan.Kind != domain.LoanLent && loan.Kind != domain.LoanBorrowed {
		return nil, store.Invalid("kind", "loan kind must be lent or borrowed")
	}
	if loan.Name == "" {
		return nil, store.Invalid("name", "name is required")
	}
	if loan.AmountCents <= 0 {
		return nil, store.Invalid("amount_cents", "amount must be greater than zero")
	}
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = time.Now().UTC()
	}
	loan.Status = domain.LoanStatusUnpaid
	loan.PaidAt = nil

	err := s.queryRow(ctx, s.db, `
		INSERT INTO loans (kind, name, phone, amount_cents, status, created_at, paid_at)
		VALUES (?,?,?,?,?,?,NULL)
		RETURNING id
	`, string(loan.Kind), loan.Name, nullIfEmpty(loan.Phone), loan.AmountCents, loan.Status, s.dialect.time(loan.CreatedAt)).Scan(&loan.ID)
	if err != nil {
		return nil, store.Storage("create loan", err)
	}
	return &loan, nil
}

func scanLoan(row rowScanner) (domain.Loan, error) {
	var loan domain.Loan
	var kind string
	var phone sql.NullString
	if err := row.Scan(&loan.ID, &kind, &loan.Name, &phone, &loan.AmountCents, &loan.Status,
		timeValue{dst: &loan.CreatedAt}, nullTimeValue{dst: &loan.PaidAt}); err != nil {
		return domain.Loan{}, err
	}
	loan.Kind = domain.LoanKind(kind)
	loan.Phone = phone.String
	return loan, nil
}

const loanColumns = `id, kind, name, phone, amount_cents, status, created_at, paid_at`

func (s *Store) getLoan(ctx context.Context, q queryer, id int64) (*domain.Loan, error) {
	loan, err := scanLoan(s.queryRow(ctx, q, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id))
	if err != nil {
		if noRows(err) {
			return nil, store.NotFound("loan", id)
		}
		return nil, err
	}
	return &loan, nil
}

func (s *Store) ListLoans(ctx context.Context, kind domain.LoanKind) ([]domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans`
	args := make([]any, 0, 1)
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, store.Storage("list loans", err)
	}
	defer rows.Close()

	loans := make([]domain.Loan, 0, 16)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, store.Storage("list loans", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list loans", err)
	}
	return loans, nil
}

func (s *Store) MarkLoanPaid(ctx context.Context, id int64, at time.Time) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.inTx(ctx, "mark loan paid", func(tx *sql.Tx) error {
		existing, err := s.getLoan(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing.Status == domain.LoanStatusPaid {
			return store.Conflict("loan %d is already settled", id)
		}
		if _, err := s.exec(ctx, tx, `
			UPDATE loans SET status = ?, paid_at = ? WHERE id = ?
		`, domain.LoanStatusPaid, s.dialect.time(at), id); err != nil {
			return err
		}
		loan, err = s.getLoan(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *Store) DeleteLoan(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return store.Storage("delete loan", err)
	}
	return affectedOrNotFound(res, "loan", id)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, s.dialect.time(entry.CreatedAt))
	if err != nil {
		return store.Storage("create audit log", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, s.db, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, store.Storage("list audit logs", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, timeValue{dst: &entry.CreatedAt}); err != nil {
			return nil, store.Storage("list audit logs", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list audit logs", err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("username", "username and password are required")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
	`, user.Username, user.Password, user.Role, user.Active, s.dialect.time(user.CreatedAt), s.dialect.time(user.CreatedAt))
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return store.Conflict("user %q already exists", user.Username)
		}
		return store.Storage("create user", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, store.Storage("list users", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, timeValue{dst: &user.CreatedAt}); err != nil {
			return nil, store.Storage("list users", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list users", err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("username", "username and password are required")
	}

	res, err := s.exec(ctx, s.db, `
		UPDATE app_users SET password = ?, updated_at = ? WHERE username = ?
	`, password, s.dialect.time(time.Now().UTC()), username)
	if err != nil {
		return store.Storage("update user password", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("update user password", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
