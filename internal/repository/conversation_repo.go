package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// ConversationRepository stores conversations, messages and read state.
// Only the conversation service writes here, apart from Create and Freeze
// which the matching registry calls inside its pair transaction.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

// Create opens the empty conversation of a new match.
func (r *ConversationRepository) Create(ctx context.Context, matchID string, now time.Time) error {
	return r.db.WithContext(ctx).Create(&db.Conversation{MatchID: matchID, CreatedAt: now}).Error
}

func (r *ConversationRepository) Get(ctx context.Context, matchID string) (*db.Conversation, error) {
	var c db.Conversation
	err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("conversation %s not found", matchID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Freeze stops the conversation from accepting messages.
func (r *ConversationRepository) Freeze(ctx context.Context, matchID string) error {
	return r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("match_id = ?", matchID).
		Update("frozen", true).Error
}

// AllocateSeq bumps and returns the conversation's sequence counter. The
// UPDATE holds the conversation row lock until the transaction ends, so
// concurrent appends get distinct, increasing numbers.
func (r *ConversationRepository) AllocateSeq(ctx context.Context, matchID string) (uint64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("match_id = ?", matchID).
		Update("next_seq", gorm.Expr("next_seq + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, svcErr.NotFound("conversation %s not found", matchID)
	}

	var seq uint64
	err := r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("match_id = ?", matchID).
		Select("next_seq").
		Scan(&seq).Error
	return seq, err
}

// AppendMessage stores msg, marks it read by its sender and moves the
// last-message pointer.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *db.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	read := db.MessageRead{MessageID: msg.ID, UserID: msg.SenderID, MatchID: msg.MatchID, ReadAt: msg.CreatedAt}
	if err := r.db.WithContext(ctx).Create(&read).Error; err != nil {
		return err
	}
	at := msg.CreatedAt
	return r.db.WithContext(ctx).
		Model(&db.Conversation{}).
		Where("match_id = ?", msg.MatchID).
		Updates(map[string]any{
			"last_message_id":     msg.ID,
			"last_message":        msg.Content,
			"last_message_sender": msg.SenderID,
			"last_message_at":     &at,
		}).Error
}

// MarkRead adds readerID to the read set of every message in the
// conversation sent by someone else. Existing rows are left alone, so the
// sets only grow. Returns how many messages became read.
func (r *ConversationRepository) MarkRead(ctx context.Context, matchID, readerID string, now time.Time) (int64, error) {
	var unread []string
	err := r.db.WithContext(ctx).
		Table("messages m").
		Where("m.match_id = ? AND m.sender_id <> ?", matchID, readerID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)", readerID).
		Order("m.seq ASC").
		Pluck("m.id", &unread).Error
	if err != nil || len(unread) == 0 {
		return 0, err
	}

	rows := make([]db.MessageRead, 0, len(unread))
	for _, id := range unread {
		rows = append(rows, db.MessageRead{MessageID: id, UserID: readerID, MatchID: matchID, ReadAt: now})
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, 200)
	return res.RowsAffected, res.Error
}

// ListMessages returns up to limit messages with seq greater than afterSeq
// and less than beforeSeq (0 = no upper bound), newest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, matchID string, afterSeq, beforeSeq uint64, limit int) ([]db.Message, error) {
	var msgs []db.Message
	query := r.db.WithContext(ctx).
		Where("match_id = ? AND seq > ?", matchID, afterSeq).
		Order("seq DESC").
		Limit(limit)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}
	err := query.Find(&msgs).Error
	return msgs, err
}

// ReadersOf returns the read set of each message id.
func (r *ConversationRepository) ReadersOf(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var reads []db.MessageRead
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC, user_id ASC").
		Find(&reads).Error
	if err != nil {
		return nil, err
	}
	for _, rd := range reads {
		out[rd.MessageID] = append(out[rd.MessageID], rd.UserID)
	}
	return out, nil
}

// UnreadCount counts messages after afterSeq not read by userID.
func (r *ConversationRepository) UnreadCount(ctx context.Context, matchID, userID string, afterSeq uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Table("messages m").
		Where("m.match_id = ? AND m.seq > ? AND m.sender_id <> ?", matchID, afterSeq, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)", userID).
		Count(&n).Error
	return n, err
}

// Tombstone returns the user's deletion marker for a conversation, or nil.
func (r *ConversationRepository) Tombstone(ctx context.Context, matchID, userID string) (*db.ConversationTombstone, error) {
	var t db.ConversationTombstone
	err := r.db.WithContext(ctx).Where("match_id = ? AND user_id = ?", matchID, userID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PutTombstone hides everything up to upToSeq from userID. Deleting again
// moves the marker forward.
func (r *ConversationRepository) PutTombstone(ctx context.Context, matchID, userID string, upToSeq uint64, now time.Time) error {
	t := db.ConversationTombstone{MatchID: matchID, UserID: userID, DeletedAt: now, UpToSeq: upToSeq}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"deleted_at", "up_to_seq"}),
		}).
		Create(&t).Error
}

// ListForUser returns the conversations of every match userID is part of.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]db.Conversation, []db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Find(&matches).Error
	if err != nil || len(matches) == 0 {
		return nil, nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	var convs []db.Conversation
	err = r.db.WithContext(ctx).Where("match_id IN ?", ids).Find(&convs).Error
	return convs, matches, err
}
