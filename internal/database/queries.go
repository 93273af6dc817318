package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedreader/internal/domain"
)

var ErrFeedNotFound = errors.New("feed not found")

// AddFeed registers feed unless its URL is already registered. It reports
// whether a row was inserted.
func (d *Database) AddFeed(ctx context.Context, feed domain.Feed) (bool, error) {
	feed.URL = strings.TrimSpace(feed.URL)
	if feed.URL == "" {
		return false, errors.New("feed URL is empty")
	}

	if strings.TrimSpace(feed.ID) == "" {
		return false, errors.New("feed ID is empty")
	}

	feed.Title = strings.TrimSpace(feed.Title)
	if feed.Title == "" {
		feed.Title = feed.URL
	}

	query := `insert or ignore into feeds (id, url, title, icon)
	values (:id, :url, :title, :icon)`

	res, err := d.db.NamedExecContext(ctx, query, feed)
	if err != nil {
		return false, fmt.Errorf("execute query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return affected > 0, nil
}

func (d *Database) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	query := "select id, url, title, icon, created_at from feeds order by created_at, url"

	var feeds []domain.Feed
	if err := d.db.SelectContext(ctx, &feeds, query); err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	return feeds, nil
}

func (d *Database) GetFeed(ctx context.Context, feedID string) (domain.Feed, error) {
	query := "select id, url, title, icon, created_at from feeds where id = ?"

	var feed domain.Feed
	if err := d.db.GetContext(ctx, &feed, query, feedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Feed{}, ErrFeedNotFound
		}

		return domain.Feed{}, fmt.Errorf("execute query: %w", err)
	}

	return feed, nil
}

func (d *Database) GetFeedByURL(ctx context.Context, feedURL string) (domain.Feed, error) {
	query := "select id, url, title, icon, created_at from feeds where url = ?"

	var feed domain.Feed
	if err := d.db.GetContext(ctx, &feed, query, strings.TrimSpace(feedURL)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Feed{}, ErrFeedNotFound
		}

		return domain.Feed{}, fmt.Errorf("execute query: %w", err)
	}

	return feed, nil
}

func (d *Database) CountFeeds(ctx context.Context) (int, error) {
	var count int
	if err := d.db.GetContext(ctx, &count, "select count(*) from feeds"); err != nil {
		return 0, fmt.Errorf("execute query: %w", err)
	}

	return count, nil
}

func (d *Database) UpdateFeedTitle(ctx context.Context, feedID string, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	_, err := d.db.ExecContext(ctx, "update feeds set title = ? where id = ?", feedTitle, feedID)

	return err
}

func (d *Database) UpdateFeedIcon(ctx context.Context, feedID string, icon string) error {
	_, err := d.db.ExecContext(ctx, "update feeds set icon = ? where id = ?", strings.TrimSpace(icon), feedID)

	return err
}

func (d *Database) RemoveFeed(ctx context.Context, feedID string) error {
	res, err := d.db.ExecContext(ctx, "delete from feeds where id = ?", feedID)
	if err != nil {
		return fmt.Errorf("execute query: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrFeedNotFound
	}

	return nil
}
