package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

const productColumns = `
	p.id, p.name, COALESCE(p.description, '') AS description, p.price,
	COALESCE(b.name, '') AS brand_name, COALESCE(c.title, '') AS category_title,
	COALESCE(p.image, '') AS image,
	ARRAY(
		SELECT DISTINCT co.name FROM product_variants v JOIN colors co ON co.id = v.color_id
		WHERE v.product_id = p.id
	) AS colors,
	ARRAY(
		SELECT DISTINCT s.name FROM product_variants v JOIN sizes s ON s.id = v.size_id
		WHERE v.product_id = p.id AND v.stock_quantity > 0
	) AS sizes`

const productFrom = `
	FROM products p
	LEFT JOIN brands b ON b.id = p.brand_id
	LEFT JOIN categories c ON c.id = p.category_id`

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an open connection
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// SearchProducts returns up to limit products matching pred
func (r *PostgresRepository) SearchProducts(ctx context.Context, pred Predicate, limit int) ([]model.Product, error) {
	whereClause, args, argIndex := pred.SQL(1)

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY p.id LIMIT $%d`,
		productColumns, productFrom, whereClause, argIndex)
	args = append(args, limit)

	products := []model.Product{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// FindByPriceRange returns up to limit products priced within [min, max]
func (r *PostgresRepository) FindByPriceRange(ctx context.Context, min, max int64, limit int) ([]model.Product, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE p.price >= $1 AND p.price <= $2 ORDER BY p.id LIMIT $3`,
		productColumns, productFrom)

	products := []model.Product{}
	if err := r.db.SelectContext(ctx, &products, query, min, max, limit); err != nil {
		return nil, fmt.Errorf("failed to find products by price: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a single product
func (r *PostgresRepository) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	query := fmt.Sprintf(`SELECT %s %s WHERE p.id = $1`, productColumns, productFrom)
	err := r.db.GetContext(ctx, &product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// BrandTitles lists every brand name in the catalog
func (r *PostgresRepository) BrandTitles(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, `SELECT name FROM brands ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return names, nil
}

// CategoryTitles lists every category title in the catalog
func (r *PostgresRepository) CategoryTitles(ctx context.Context) ([]string, error) {
	var titles []string
	if err := r.db.SelectContext(ctx, &titles, `SELECT title FROM categories ORDER BY title`); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return titles, nil
}

// FindAnswer returns the first active knowledge entry whose question contains
// the message, whose keywords include the lower-cased message, or one of
// whose keywords occurs in the message. It returns nil when nothing matches.
func (r *PostgresRepository) FindAnswer(ctx context.Context, message string) (*model.KnowledgeEntry, error) {
	message = norm.NFC.String(strings.TrimSpace(message))
	lowered := lexicon.Fold(message)
	if lowered == "" {
		return nil, nil
	}

	query := `
		SELECT id, knowledge_type, question, answer, keywords, is_active
		FROM ai_knowledge_base
		WHERE is_active = true AND (
			question ILIKE $1
			OR keywords @> to_jsonb($2::text)
			OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(keywords) k
				WHERE length(k) > 0 AND $2 LIKE '%' || lower(k) || '%'
			)
		)
		ORDER BY knowledge_type, question
		LIMIT 1
	`
	var entry model.KnowledgeEntry
	err := r.db.GetContext(ctx, &entry, query, "%"+escapeLike(message)+"%", lowered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	return &entry, nil
}

// GetUserPreference returns a user's stored preferences
func (r *PostgresRepository) GetUserPreference(ctx context.Context, userID int64) (*model.UserPreference, error) {
	var pref model.UserPreference
	query := `
		SELECT user_id, preferred_brands, preferred_categories, size_preferences,
			price_range, style_preferences, updated_at
		FROM ai_user_preferences
		WHERE user_id = $1
	`
	err := r.db.GetContext(ctx, &pref, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user preference: %w", err)
	}
	return &pref, nil
}

// UpsertUserPreference creates or replaces a user's preferences
func (r *PostgresRepository) UpsertUserPreference(ctx context.Context, pref *model.UserPreference) error {
	query := `
		INSERT INTO ai_user_preferences (user_id, preferred_brands, preferred_categories,
			size_preferences, price_range, style_preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_brands = EXCLUDED.preferred_brands,
			preferred_categories = EXCLUDED.preferred_categories,
			size_preferences = EXCLUDED.size_preferences,
			price_range = EXCLUDED.price_range,
			style_preferences = EXCLUDED.style_preferences,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, pref.UserID, pref.PreferredBrands, pref.PreferredCategories,
		pref.SizePreferences, pref.PriceRange, pref.StylePreferences)
	if err != nil {
		return fmt.Errorf("failed to upsert user preference: %w", err)
	}
	return nil
}

// LogExchange persists a user message, the reply and its action log in one
// transaction
func (r *PostgresRepository) LogExchange(ctx context.Context, ex model.Exchange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var conversationID int64
	err = tx.GetContext(ctx, &conversationID, `
		INSERT INTO ai_conversations (session_id, user_id, is_active, created_at, updated_at)
		VALUES ($1, $2, true, NOW(), NOW())
		ON CONFLICT (session_id) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, ex.SessionID, ex.UserID)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	insertMessage := `
		INSERT INTO ai_messages (conversation_id, message_type, content, metadata, timestamp)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`
	var userMessageID int64
	if err := tx.GetContext(ctx, &userMessageID, insertMessage,
		conversationID, model.MessageTypeUser, ex.UserMessage, model.JSONMap{}); err != nil {
		return fmt.Errorf("failed to insert user message: %w", err)
	}

	meta, err := replyMetadata(ex)
	if err != nil {
		return err
	}
	var aiMessageID int64
	if err := tx.GetContext(ctx, &aiMessageID, insertMessage,
		conversationID, model.MessageTypeAI, ex.Reply.Message, meta); err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}

	for _, action := range ex.Reply.ActionsTaken {
		params, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to encode action: %w", err)
		}
		results, _ := json.Marshal(map[string]int{"results_count": action.ResultsCount})
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ai_actions (message_id, action_type, parameters, results, success, timestamp)
			VALUES ($1, $2, $3, $4, true, NOW())
		`, aiMessageID, action.Type, params, results)
		if err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LogFeedback records what the user did with a suggested product against the
// session's latest reply
func (r *PostgresRepository) LogFeedback(ctx context.Context, sessionID string, productID int64, action string) error {
	query := `
		INSERT INTO ai_actions (message_id, action_type, parameters, results, success, timestamp)
		SELECT m.id, 'feedback', jsonb_build_object('product_id', $2::bigint, 'action', $3::text), '{}'::jsonb, true, NOW()
		FROM ai_messages m
		JOIN ai_conversations c ON c.id = m.conversation_id
		WHERE c.session_id = $1 AND m.message_type = 'ai'
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT 1
	`
	res, err := r.db.ExecContext(ctx, query, sessionID, productID, action)
	if err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFeedback returns the feedback recorded for a session, oldest first
func (r *PostgresRepository) ListFeedback(ctx context.Context, sessionID string) ([]model.Feedback, error) {
	query := `
		SELECT a.message_id, c.session_id,
			(a.parameters->>'product_id')::bigint AS product_id,
			a.parameters->>'action' AS action,
			a.timestamp
		FROM ai_actions a
		JOIN ai_messages m ON m.id = a.message_id
		JOIN ai_conversations c ON c.id = m.conversation_id
		WHERE c.session_id = $1 AND a.action_type = 'feedback'
		ORDER BY a.timestamp, a.id
	`
	feedback := []model.Feedback{}
	if err := r.db.SelectContext(ctx, &feedback, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return feedback, nil
}

// ListConversation returns the most recent messages of a session, oldest
// first
func (r *PostgresRepository) ListConversation(ctx context.Context, sessionID string, limit int) ([]model.ConversationMessage, error) {
	query := `
		SELECT id, session_id, message_type, content, metadata, timestamp FROM (
			SELECT m.id, c.session_id, m.message_type, m.content, m.metadata, m.timestamp
			FROM ai_messages m
			JOIN ai_conversations c ON c.id = m.conversation_id
			WHERE c.session_id = $1
			ORDER BY m.timestamp DESC, m.id DESC
			LIMIT $2
		) recent
		ORDER BY timestamp, id
	`
	messages := []model.ConversationMessage{}
	if err := r.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return messages, nil
}

func replyMetadata(ex model.Exchange) (model.JSONMap, error) {
	productIDs := make([]int64, len(ex.Reply.SuggestedProducts))
	for i, p := range ex.Reply.SuggestedProducts {
		productIDs[i] = p.ID
	}
	raw, err := json.Marshal(map[string]interface{}{
		"intent":           ex.Reply.Metadata.Intent,
		"entities":         ex.Reply.Metadata.Entities,
		"is_follow_up":     ex.Reply.Metadata.IsFollowUp,
		"quick_replies":    ex.Reply.QuickReplies,
		"products_found":   productIDs,
		"response_time_ms": ex.Took.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply metadata: %w", err)
	}
	meta := model.JSONMap{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to encode reply metadata: %w", err)
	}
	return meta, nil
}
