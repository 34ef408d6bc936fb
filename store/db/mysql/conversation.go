package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/pcplabs/pcpchat/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := "INSERT INTO `conversations` (`id`, `user_id`, `title`, `created_ts`, `updated_ts`) VALUES (?, ?, ?, ?, ?)"
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.OwnerID, create.Title, create.CreatedTs, create.UpdatedTs,
	); err != nil {
		return nil, err
	}
	out := *create
	return &out, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "`id` = ?"), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "`user_id` = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		"SELECT `id`, `user_id`, `title`, `created_ts`, `updated_ts` FROM `conversations` WHERE %s ORDER BY `updated_ts` DESC",
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.UID, &c.OwnerID, &c.Title, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "`title` = ?"), append(args, *v)
	}
	if len(set) > 0 {
		set = append(set, "`updated_ts` = GREATEST(`updated_ts`, UNIX_TIMESTAMP())")
		args = append(args, update.UID)
		stmt := fmt.Sprintf("UPDATE `conversations` SET %s WHERE `id` = ?", strings.Join(set, ", "))
		result, err := d.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			// Distinguish "no such row" from "same title written twice".
			if _, getErr := d.getConversation(ctx, update.UID); getErr != nil {
				return nil, getErr
			}
		}
	}
	return d.getConversation(ctx, update.UID)
}

func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM `conversations` WHERE `id` = ?", uid)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessages inserts the batch and bumps the conversation's updated_ts in
// one transaction so a partially applied batch is never visible.
func (d *DB) AppendMessages(ctx context.Context, uid string, msgs []*store.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var latest int64
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO `messages` (`conversation_id`, `role`, `content`, `created_ts`) VALUES (?, ?, ?, ?)",
			uid, m.Role, m.Content, m.CreatedTs,
		); err != nil {
			return err
		}
		if m.CreatedTs > latest {
			latest = m.CreatedTs
		}
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE `conversations` SET `updated_ts` = GREATEST(`updated_ts`, ?) WHERE `id` = ?", latest, uid)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (d *DB) ListMessages(ctx context.Context, uid string) ([]*store.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT `role`, `content`, `created_ts` FROM `messages` WHERE `conversation_id` = ? ORDER BY `id` ASC", uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) getConversation(ctx context.Context, uid string) (*store.Conversation, error) {
	list, err := d.ListConversations(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}
