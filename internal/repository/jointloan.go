package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

// ErrGroupClosed возвращается при попытке изменить состав группы, вышедшей из статуса MATCHING.
var ErrGroupClosed = errors.New("joint loan group is not matching")

// CreateGroup сохраняет новую группу совместного займа вместе с участником-создателем.
func (r *PostgresRepository) CreateGroup(ctx context.Context, g *model.JointLoanGroup, creator *model.JointLoanMember) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO joint_loan_groups (creator_id, threshold, target_count, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		g.CreatorID, g.ThresholdCents, g.TargetCount, string(g.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO joint_loan_members (group_id, farmer_id, amount, purpose, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, creator.FarmerID, creator.AmountCents, creator.Purpose, string(creator.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("create group creator member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetGroup возвращает группу совместного займа по идентификатору.
func (r *PostgresRepository) GetGroup(ctx context.Context, id int64) (*model.JointLoanGroup, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, creator_id, threshold, target_count, status, created_at
		 FROM joint_loan_groups WHERE id = $1`,
		id,
	)

	var g model.JointLoanGroup
	var status string
	err := row.Scan(&g.ID, &g.CreatorID, &g.ThresholdCents, &g.TargetCount, &status, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.Status = model.GroupStatus(status)

	return &g, nil
}

// ListMembers возвращает участников группы в порядке вступления.
func (r *PostgresRepository) ListMembers(ctx context.Context, groupID int64) ([]model.JointLoanMember, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, group_id, farmer_id, amount, purpose, status, created_at
		 FROM joint_loan_members WHERE group_id = $1 ORDER BY id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var res []model.JointLoanMember
	for rows.Next() {
		var m model.JointLoanMember
		var status string
		if err := rows.Scan(&m.ID, &m.GroupID, &m.FarmerID, &m.AmountCents, &m.Purpose, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Status = model.MemberStatus(status)
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// JoinGroup добавляет фермера в группу. Строка группы блокируется для сериализации вступлений;
// при достижении порога группа переводится в MATCHED. Возвращает признак состоявшегося матчинга.
func (r *PostgresRepository) JoinGroup(ctx context.Context, groupID, farmerID, amountCents int64, purpose string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var threshold int64
	err = tx.QueryRow(ctx,
		`SELECT status, threshold FROM joint_loan_groups WHERE id = $1 FOR UPDATE`,
		groupID,
	).Scan(&status, &threshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrGroupNotFound
		}
		return false, fmt.Errorf("lock group: %w", err)
	}

	if model.GroupStatus(status) != model.GroupStatusMatching {
		return false, ErrGroupClosed
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO joint_loan_members (group_id, farmer_id, amount, purpose, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		groupID, farmerID, amountCents, purpose, string(model.MemberPending),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, ErrAlreadyMember
		}
		return false, fmt.Errorf("insert member: %w", err)
	}

	var total int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM joint_loan_members WHERE group_id = $1`,
		groupID,
	).Scan(&total)
	if err != nil {
		return false, fmt.Errorf("sum member amounts: %w", err)
	}

	matched := total >= threshold
	if matched {
		_, err = tx.Exec(ctx,
			`UPDATE joint_loan_groups SET status = $2 WHERE id = $1`,
			groupID, string(model.GroupStatusMatched),
		)
		if err != nil {
			return false, fmt.Errorf("mark group matched: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return matched, nil
}

// QuitGroup исключает фермера из группы в статусе MATCHING.
// Если единственным оставшимся участником оказывается создатель, группа отменяется.
// Возвращает признак отмены группы.
func (r *PostgresRepository) QuitGroup(ctx context.Context, groupID, farmerID int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var creatorID int64
	err = tx.QueryRow(ctx,
		`SELECT status, creator_id FROM joint_loan_groups WHERE id = $1 FOR UPDATE`,
		groupID,
	).Scan(&status, &creatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrGroupNotFound
		}
		return false, fmt.Errorf("lock group: %w", err)
	}

	if model.GroupStatus(status) != model.GroupStatusMatching {
		return false, ErrGroupClosed
	}

	cmdTag, err := tx.Exec(ctx,
		`DELETE FROM joint_loan_members WHERE group_id = $1 AND farmer_id = $2`,
		groupID, farmerID,
	)
	if err != nil {
		return false, fmt.Errorf("delete member: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, ErrMemberNotFound
	}

	var remaining int64
	var lastFarmerID *int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), MIN(farmer_id) FROM joint_loan_members WHERE group_id = $1`,
		groupID,
	).Scan(&remaining, &lastFarmerID)
	if err != nil {
		return false, fmt.Errorf("count remaining members: %w", err)
	}

	cancelled := remaining == 1 && lastFarmerID != nil && *lastFarmerID == creatorID
	if cancelled {
		_, err = tx.Exec(ctx,
			`UPDATE joint_loan_groups SET status = $2 WHERE id = $1`,
			groupID, string(model.GroupStatusCancelled),
		)
		if err != nil {
			return false, fmt.Errorf("cancel group: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return cancelled, nil
}

// UpdateGroupStatus переводит группу из ожидаемого статуса в новый по схеме compare-and-swap.
func (r *PostgresRepository) UpdateGroupStatus(ctx context.Context, id int64, from, to model.GroupStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE joint_loan_groups SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(to), string(from),
	)
	if err != nil {
		return fmt.Errorf("update group status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// UpdateMemberStatus обновляет статус участника группы.
func (r *PostgresRepository) UpdateMemberStatus(ctx context.Context, memberID int64, status model.MemberStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE joint_loan_members SET status = $2 WHERE id = $1`,
		memberID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// GroupCandidate — открытая группа с суммой уже собранных заявок.
type GroupCandidate struct {
	Group       model.JointLoanGroup
	JoinedCents int64
	MemberCount int64
}

// ListOpenGroupsExcluding возвращает группы в статусе MATCHING, в которых фермер ещё не состоит.
func (r *PostgresRepository) ListOpenGroupsExcluding(ctx context.Context, farmerID int64) ([]GroupCandidate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.creator_id, g.threshold, g.target_count, g.status, g.created_at,
		        COALESCE(SUM(m.amount), 0), COUNT(m.id)
		 FROM joint_loan_groups g
		 LEFT JOIN joint_loan_members m ON m.group_id = g.id
		 WHERE g.status = $1
		   AND NOT EXISTS (SELECT 1 FROM joint_loan_members x WHERE x.group_id = g.id AND x.farmer_id = $2)
		 GROUP BY g.id
		 ORDER BY g.created_at`,
		string(model.GroupStatusMatching), farmerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select open groups: %w", err)
	}
	defer rows.Close()

	var res []GroupCandidate
	for rows.Next() {
		var c GroupCandidate
		var status string
		if err := rows.Scan(&c.Group.ID, &c.Group.CreatorID, &c.Group.ThresholdCents, &c.Group.TargetCount,
			&status, &c.Group.CreatedAt, &c.JoinedCents, &c.MemberCount); err != nil {
			return nil, fmt.Errorf("scan group candidate: %w", err)
		}
		c.Group.Status = model.GroupStatus(status)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
