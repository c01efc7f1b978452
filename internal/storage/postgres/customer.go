package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	listGroupsSQL = `SELECT group_id FROM customer_group_members
		WHERE customer_id = $1 ORDER BY group_id`

	addGroupMemberSQL = `INSERT INTO customer_group_members (customer_id, group_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

var _ coupon.CustomerDirectory = (*CustomerRepository)(nil)

// CustomerRepository resolves customer group memberships.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GroupsOf returns the groups customerID belongs to.
func (r *CustomerRepository) GroupsOf(ctx context.Context, customerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, listGroupsSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing groups of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AddToGroup makes customerID a member of groupID.
func (r *CustomerRepository) AddToGroup(ctx context.Context, customerID, groupID string) error {
	if _, err := r.pool.Exec(ctx, addGroupMemberSQL, customerID, groupID); err != nil {
		return fmt.Errorf("adding %q to group %q: %w", customerID, groupID, err)
	}
	return nil
}
