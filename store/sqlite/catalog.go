package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/warp/rental-ledger/ledger"
)

// =============================================================================
// PROJECTS / ACCOUNTS / CATEGORIES
// =============================================================================

// CreateProject inserts a project. A zero ID lets the database assign one.
func (c *conn) CreateProject(ctx context.Context, p ledger.Project) (ledger.ProjectID, error) {
	if p.Currency == "" {
		p.Currency = "RD$"
	}
	id, err := c.insert(ctx,
		"INSERT INTO projects (id, name, main_account_name, currency, active) VALUES (?, ?, ?, ?, ?)",
		ledger.IDPtr(p.ID), p.Name, p.MainAccountName, p.Currency, p.Active,
	)
	return ledger.ProjectID(id), err
}

func (c *conn) GetProject(ctx context.Context, id ledger.ProjectID) (*ledger.Project, error) {
	var p ledger.Project
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, main_account_name, currency, active FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.MainAccountName, &p.Currency, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get project", err)
	}
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (c *conn) ListProjects(ctx context.Context) ([]ledger.Project, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, main_account_name, currency, active FROM projects ORDER BY name")
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	defer rows.Close()

	var out []ledger.Project
	for rows.Next() {
		var p ledger.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.MainAccountName, &p.Currency, &p.Active); err != nil {
			return nil, storeErr("scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *conn) CreateAccount(ctx context.Context, a ledger.Account) (ledger.AccountID, error) {
	id, err := c.insert(ctx, "INSERT INTO accounts (id, name) VALUES (?, ?)", ledger.IDPtr(a.ID), a.Name)
	return ledger.AccountID(id), err
}

func (c *conn) GetAccountByName(ctx context.Context, name string) (*ledger.Account, error) {
	var a ledger.Account
	err := c.q.QueryRowContext(ctx, "SELECT id, name FROM accounts WHERE name = ?", name).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get account", err)
	}
	return &a, nil
}

func (c *conn) CreateCategory(ctx context.Context, cat ledger.Category) (ledger.CategoryID, error) {
	id, err := c.insert(ctx, "INSERT INTO categories (id, name) VALUES (?, ?)", ledger.IDPtr(cat.ID), cat.Name)
	return ledger.CategoryID(id), err
}

func (c *conn) GetCategoryByName(ctx context.Context, name string) (*ledger.Category, error) {
	var cat ledger.Category
	err := c.q.QueryRowContext(ctx, "SELECT id, name FROM categories WHERE name = ?", name).Scan(&cat.ID, &cat.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get category", err)
	}
	return &cat, nil
}

// =============================================================================
// SUBCATEGORIES
// =============================================================================

func (c *conn) CreateSubcategory(ctx context.Context, sc ledger.Subcategory) (ledger.SubcategoryID, error) {
	id, err := c.insert(ctx, "INSERT INTO subcategories (id, name) VALUES (?, ?)", ledger.IDPtr(sc.ID), sc.Name)
	return ledger.SubcategoryID(id), err
}

func (c *conn) GetSubcategory(ctx context.Context, id ledger.SubcategoryID) (*ledger.Subcategory, error) {
	return c.getSubcategory(ctx, "SELECT id, name FROM subcategories WHERE id = ?", id)
}

// GetSubcategoryByName returns the lowest-id subcategory with that exact name.
func (c *conn) GetSubcategoryByName(ctx context.Context, name string) (*ledger.Subcategory, error) {
	return c.getSubcategory(ctx, "SELECT id, name FROM subcategories WHERE name = ? ORDER BY id LIMIT 1", name)
}

func (c *conn) getSubcategory(ctx context.Context, query string, arg any) (*ledger.Subcategory, error) {
	var sc ledger.Subcategory
	err := c.q.QueryRowContext(ctx, query, arg).Scan(&sc.ID, &sc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get subcategory", err)
	}
	return &sc, nil
}

// DeleteSubcategory removes a subcategory. Fails while transactions reference it.
func (c *conn) DeleteSubcategory(ctx context.Context, id ledger.SubcategoryID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM subcategories WHERE id = ?", id)
	return storeErr("delete subcategory", err)
}

func (c *conn) RenameSubcategory(ctx context.Context, id ledger.SubcategoryID, name string) (int64, error) {
	return c.Exec(ctx, "UPDATE subcategories SET name = ? WHERE id = ?", name, id)
}

// =============================================================================
// ENTITIES (clients / operators)
// =============================================================================

func (c *conn) CreateEntity(ctx context.Context, e ledger.Entity) (ledger.EntityID, error) {
	id, err := c.insert(ctx, "INSERT INTO entities (id, name, kind) VALUES (?, ?, ?)",
		ledger.IDPtr(e.ID), e.Name, e.Kind)
	return ledger.EntityID(id), err
}

func (c *conn) GetEntity(ctx context.Context, id ledger.EntityID) (*ledger.Entity, error) {
	var e ledger.Entity
	err := c.q.QueryRowContext(ctx, "SELECT id, name, kind FROM entities WHERE id = ?", id).
		Scan(&e.ID, &e.Name, &e.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get entity", err)
	}
	return &e, nil
}

// ListEntities returns clients or operators ordered by name. Empty kind lists all.
func (c *conn) ListEntities(ctx context.Context, kind ledger.EntityKind) ([]ledger.Entity, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, kind FROM entities WHERE (? = '' OR kind = ?) ORDER BY name", kind, kind)
	if err != nil {
		return nil, storeErr("list entities", err)
	}
	defer rows.Close()

	var out []ledger.Entity
	for rows.Next() {
		var e ledger.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind); err != nil {
			return nil, storeErr("scan entity", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// EQUIPMENT
// =============================================================================

const equipmentColumns = `id, name, maintenance_trigger_kind, maintenance_trigger_value, active, project_id`

func (c *conn) CreateEquipment(ctx context.Context, e ledger.Equipment) (ledger.EquipmentID, error) {
	if e.MaintenanceTriggerKind == "" {
		e.MaintenanceTriggerKind = ledger.TriggerNone
	}
	id, err := c.insert(ctx,
		"INSERT INTO equipment ("+equipmentColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		ledger.IDPtr(e.ID), e.Name, e.MaintenanceTriggerKind, e.MaintenanceTriggerValue, e.Active, e.ProjectID,
	)
	return ledger.EquipmentID(id), err
}

func (c *conn) GetEquipment(ctx context.Context, id ledger.EquipmentID) (*ledger.Equipment, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT "+equipmentColumns+" FROM equipment WHERE id = ?", id)
	if err != nil {
		return nil, storeErr("get equipment", err)
	}
	list, err := scanEquipment(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// ListEquipment returns equipment ordered by id.
func (c *conn) ListEquipment(ctx context.Context, activeOnly bool) ([]ledger.Equipment, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipment WHERE (? = 0 OR active = 1) ORDER BY id", activeOnly)
	if err != nil {
		return nil, storeErr("list equipment", err)
	}
	return scanEquipment(rows)
}

// RetireEquipment clears the active flag.
func (c *conn) RetireEquipment(ctx context.Context, id ledger.EquipmentID) error {
	_, err := c.Exec(ctx, "UPDATE equipment SET active = 0 WHERE id = ?", id)
	return err
}

func scanEquipment(rows *sql.Rows) ([]ledger.Equipment, error) {
	defer rows.Close()

	var out []ledger.Equipment
	for rows.Next() {
		var (
			e         ledger.Equipment
			value     decimal.NullDecimal
			projectID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.MaintenanceTriggerKind, &value, &e.Active, &projectID); err != nil {
			return nil, storeErr("scan equipment", err)
		}
		e.MaintenanceTriggerValue = value.Decimal
		e.ProjectID = ptrID[ledger.ProjectID](projectID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// insert runs an INSERT and returns the new rowid.
func (c *conn) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("last insert id", err)
	}
	return id, nil
}
