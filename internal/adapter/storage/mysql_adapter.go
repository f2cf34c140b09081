package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/port"
)

const sweetColumns = `id, name, category, price, quantity, in_stock, description, created_at, updated_at`

// MySQLAdapter is the durable store: sweets catalog, users, and the
// purchase ledger. The conditional decrement is a single UPDATE whose WHERE
// clause carries the sufficient-quantity check, so the check and the
// mutation cannot be separated by a concurrent writer.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func scanSweet(row interface{ Scan(...any) error }) (*domain.Sweet, error) {
	var s domain.Sweet
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.Price, &s.Quantity,
		&s.InStock, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MySQLAdapter) ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// in_stock is assigned first so it sees the pre-update quantity;
	// MySQL applies SET clauses left to right.
	result, err := tx.ExecContext(ctx, `
		UPDATE sweets
		SET in_stock = quantity - ? > 0, quantity = quantity - ?, updated_at = NOW()
		WHERE id = ? AND quantity >= ?`,
		amount, amount, id, amount,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement sweet: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, nil
	}

	sweet, err := scanSweet(tx.QueryRowContext(ctx,
		`SELECT `+sweetColumns+` FROM sweets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reload sweet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return sweet, nil
}

func (m *MySQLAdapter) ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE sweets
		SET quantity = quantity + ?, in_stock = TRUE, updated_at = NOW()
		WHERE id = ?`,
		amount, id,
	)
	if err != nil {
		return nil, fmt.Errorf("increment sweet: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, nil
	}

	sweet, err := scanSweet(tx.QueryRowContext(ctx,
		`SELECT `+sweetColumns+` FROM sweets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reload sweet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return sweet, nil
}

func (m *MySQLAdapter) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	sweet, err := scanSweet(m.db.QueryRowContext(ctx,
		`SELECT `+sweetColumns+` FROM sweets WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("query sweet: %w", err)
	}
	return sweet, nil
}

func (m *MySQLAdapter) CreateSweet(ctx context.Context, sweet domain.Sweet) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sweets (`+sweetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sweet.ID, sweet.Name, sweet.Category, sweet.Price, sweet.Quantity,
		sweet.InStock, sweet.Description, sweet.CreatedAt, sweet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sweet: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetSweet(ctx context.Context, id string) (*domain.Sweet, error) {
	return m.Get(ctx, id)
}

func (m *MySQLAdapter) ListSweets(ctx context.Context) ([]domain.Sweet, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+sweetColumns+` FROM sweets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sweets: %w", err)
	}
	defer rows.Close()
	return collectSweets(rows)
}

func (m *MySQLAdapter) SearchSweets(ctx context.Context, filter port.SearchFilter) ([]domain.Sweet, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Name != "" {
		conds = append(conds, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.MinPrice > 0 {
		conds = append(conds, "price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		conds = append(conds, "price <= ?")
		args = append(args, filter.MaxPrice)
	}

	query := `SELECT ` + sweetColumns + ` FROM sweets`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search sweets: %w", err)
	}
	defer rows.Close()
	return collectSweets(rows)
}

func collectSweets(rows *sql.Rows) ([]domain.Sweet, error) {
	var sweets []domain.Sweet
	for rows.Next() {
		var s domain.Sweet
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Price, &s.Quantity,
			&s.InStock, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sweet: %w", err)
		}
		sweets = append(sweets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweets: %w", err)
	}
	return sweets, nil
}

func (m *MySQLAdapter) UpdateSweet(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	_, err := m.db.ExecContext(ctx, `
		UPDATE sweets
		SET name = ?, category = ?, price = ?, quantity = ?, in_stock = ?,
		    description = ?, updated_at = NOW()
		WHERE id = ?`,
		sweet.Name, sweet.Category, sweet.Price, sweet.Quantity,
		sweet.Quantity > 0, sweet.Description, sweet.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update sweet: %w", err)
	}
	// RowsAffected is 0 both for a missing row and for a no-op update,
	// so the reload decides between nil and the current row.
	return m.Get(ctx, sweet.ID)
}

func (m *MySQLAdapter) DeleteSweet(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM sweets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete sweet: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) RecordPurchase(ctx context.Context, p domain.Purchase) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO purchases (id, sweet_id, user_id, quantity, unit_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.SweetID, p.UserID, p.Quantity, p.UnitPrice, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// ApplyPurchase mirrors a decrement already applied by a cache-fronted
// store. The ledger insert and the quantity update either both land or
// neither does.
func (m *MySQLAdapter) ApplyPurchase(ctx context.Context, p domain.Purchase) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, sweet_id, user_id, quantity, unit_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.SweetID, p.UserID, p.Quantity, p.UnitPrice, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE sweets
		SET in_stock = quantity - ? > 0, quantity = quantity - ?, updated_at = NOW()
		WHERE id = ? AND quantity >= ?`,
		p.Quantity, p.Quantity, p.SweetID, p.Quantity,
	)
	if err != nil {
		return fmt.Errorf("mirror decrement: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("mirror decrement: sweet %s missing or out of sync", p.SweetID)
	}

	return tx.Commit()
}
