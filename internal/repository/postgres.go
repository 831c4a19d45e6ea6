package repository

import (
	"bidding-core/internal/biddingerrors"
	model "bidding-core/internal/models"
	"bidding-core/utils"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const auctionColumns = `id, title, starting_bid, current_bid, bidder_count, end_time, created_at`

const bidColumns = `id, auction_id, bidder_id, bidder_display_name, is_guest, amount, submitted_at`

// auctionRow carries the bookkeeping columns that are not part of the public summary
type auctionRow struct {
	model.Auction
	LastBidAt sql.NullTime `db:"last_bid_at"`
}

// PostgresRepo implements AuctionDB on PostgreSQL. Every bid is appended inside a
// transaction that locks the auction row, so the ledger and the summary move together.
type PostgresRepo struct {
	db *sqlx.DB
}

// NewPostgresRepo wraps an open connection pool
func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// ConnectPostgres opens and pings a connection pool
func ConnectPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies the embedded schema migrations
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateAuction inserts an auction with no bids
func (r *PostgresRepo) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if auction.ID == "" {
		auction.ID = utils.GenerateID()
	}
	auction.CurrentBid = auction.StartingBid
	auction.BidderCount = 0

	query := `
        INSERT INTO auctions (id, title, starting_bid, current_bid, bidder_count, end_time)
        VALUES ($1, $2, $3, $4, 0, $5)
        ON CONFLICT (id) DO NOTHING
        RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, auction.ID, auction.Title, auction.StartingBid, auction.CurrentBid, auction.EndTime).
		Scan(&auction.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("create auction %s: %w", auction.ID, err)
	}
	return auction, nil
}

// GetAuction returns the current summary of an auction
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var a model.Auction
	err := r.db.GetContext(ctx, &a, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns every auction ordered by end time
func (r *PostgresRepo) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	auctions := []model.Auction{}
	err := r.db.SelectContext(ctx, &auctions, `SELECT `+auctionColumns+` FROM auctions ORDER BY end_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, nil
}

// AppendBid locks the auction row, re-checks the price and end time guards, inserts
// the ledger entry and moves the summary, all in one transaction.
func (r *PostgresRepo) AppendBid(ctx context.Context, bid model.Bid) (model.Bid, model.Auction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row auctionRow
	err = tx.GetContext(ctx, &row, `SELECT `+auctionColumns+`, last_bid_at FROM auctions WHERE id = $1 FOR UPDATE`, bid.AuctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, model.Auction{}, fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to lock auction %s: %w", bid.AuctionID, err)
	}

	if bid.ID == "" {
		bid.ID = utils.GenerateID()
	}
	if bid.SubmittedAt.IsZero() {
		bid.SubmittedAt = time.Now().UTC()
	}
	// timestamptz keeps microseconds; the returned bid must match what is read back.
	bid.SubmittedAt = bid.SubmittedAt.Truncate(time.Microsecond)
	if row.LastBidAt.Valid && bid.SubmittedAt.Before(row.LastBidAt.Time) {
		bid.SubmittedAt = row.LastBidAt.Time
	}

	auction := row.Auction
	if !bid.SubmittedAt.Before(auction.EndTime) {
		return model.Bid{}, model.Auction{}, biddingerrors.Reject(biddingerrors.ErrAuctionEnded, bid.AuctionID, auction.CurrentBid, "")
	}
	if !bid.Amount.GreaterThan(auction.CurrentBid) {
		return model.Bid{}, model.Auction{}, biddingerrors.Reject(biddingerrors.ErrBidTooLow, bid.AuctionID, auction.CurrentBid, "")
	}

	var seen bool
	err = tx.GetContext(ctx, &seen, `SELECT EXISTS (SELECT 1 FROM bids WHERE auction_id = $1 AND bidder_id = $2)`, bid.AuctionID, bid.BidderID)
	if err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to check bidder history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO bids (`+bidColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.ID, bid.AuctionID, bid.BidderID, bid.BidderDisplayName, bid.IsGuest, bid.Amount, bid.SubmittedAt)
	if err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to insert bid: %w", err)
	}

	newBidder := 0
	if !seen {
		newBidder = 1
	}
	res, err := tx.ExecContext(ctx, `
        UPDATE auctions
        SET current_bid = $2, bidder_count = bidder_count + $3, last_bid_at = $4
        WHERE id = $1 AND current_bid < $2`,
		bid.AuctionID, bid.Amount, newBidder, bid.SubmittedAt)
	if err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to update auction summary: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to read update result: %w", err)
	} else if n == 0 {
		return model.Bid{}, model.Auction{}, biddingerrors.Reject(biddingerrors.ErrBidTooLow, bid.AuctionID, auction.CurrentBid, "")
	}

	if err := tx.Commit(); err != nil {
		return model.Bid{}, model.Auction{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.CurrentBid = bid.Amount
	auction.BidderCount += newBidder
	return bid, auction, nil
}

// ListByAuction returns a page of an auction's ledger
func (r *PostgresRepo) ListByAuction(ctx context.Context, auctionID string, opts model.ListOptions) ([]model.Bid, error) {
	if err := r.ensureAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}

	orderBy := `submitted_at DESC, amount DESC`
	if opts.Order == model.OrderAsc {
		orderBy = `submitted_at ASC, amount ASC`
	}
	limit := sql.NullInt64{Int64: int64(opts.Limit), Valid: opts.Limit > 0}

	bids := []model.Bid{}
	err := r.db.SelectContext(ctx, &bids,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY `+orderBy+` LIMIT $2 OFFSET $3`,
		auctionID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// HighestBid returns the winning bid of an auction
func (r *PostgresRepo) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if err := r.ensureAuction(ctx, auctionID); err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, err)
	}

	var b model.Bid
	err := r.db.GetContext(ctx, &b,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY amount DESC, submitted_at ASC LIMIT 1`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}

// GetAuctionsByBidder returns all auctions a bidder has bid on
func (r *PostgresRepo) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	auctions := []model.Auction{}
	err := r.db.SelectContext(ctx, &auctions, `
        SELECT `+auctionColumns+`
        FROM auctions
        WHERE id IN (SELECT auction_id FROM bids WHERE bidder_id = $1)
        ORDER BY end_time, id`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, err)
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoBids)
	}
	return auctions, nil
}

// ListEndedUnannounced returns auctions past their end time whose closing has not been published
func (r *PostgresRepo) ListEndedUnannounced(ctx context.Context, now time.Time) ([]model.Auction, error) {
	auctions := []model.Auction{}
	err := r.db.SelectContext(ctx, &auctions, `
        SELECT `+auctionColumns+`
        FROM auctions
        WHERE end_announced = FALSE AND end_time <= $1
        ORDER BY end_time`, now)
	if err != nil {
		return nil, fmt.Errorf("list ended auctions: %w", err)
	}
	return auctions, nil
}

// MarkEndAnnounced flips end_announced with a conditional update. It reports
// whether this call was the one that flipped it.
func (r *PostgresRepo) MarkEndAnnounced(ctx context.Context, auctionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET end_announced = TRUE WHERE id = $1 AND end_announced = FALSE`, auctionID)
	if err != nil {
		return false, fmt.Errorf("mark end announced for auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark end announced for auction %s: %w", auctionID, err)
	}
	return n == 1, nil
}

func (r *PostgresRepo) ensureAuction(ctx context.Context, auctionID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID); err != nil {
		return err
	}
	if !exists {
		return biddingerrors.ErrAuctionNotFound
	}
	return nil
}
