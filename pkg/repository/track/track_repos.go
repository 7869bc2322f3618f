//nolint:whitespace //can't make both the linter and editor happy :(
package track

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository"
)

func Create(ctx context.Context, conn repository.Querier, track *model.DbTrack) error {
	_, err := conn.Exec(ctx,
		"insert into track (id, data) values ($1,$2)",
		track.ID, track.Data)
	if err != nil {
		return err
	}
	return nil
}

// EnsureTrack creates the track if it is not yet known.
func EnsureTrack(
	ctx context.Context,
	conn repository.Querier,
	track *model.DbTrack,
) error {
	_, err := LoadById(ctx, conn, track.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Create(ctx, conn, track)
	}
	return err
}

func LoadById(
	ctx context.Context,
	conn repository.Querier,
	id int,
) (*model.DbTrack, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where id=$1", selector), id)
	var item model.DbTrack
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

func LoadAll(
	ctx context.Context,
	conn repository.Querier,
) ([]*model.DbTrack, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by id asc", selector))
	if err != nil {
		return nil, err
	}
	ret := make([]*model.DbTrack, 0)
	for rows.Next() {
		var item model.DbTrack
		if err := scan(&item, rows); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

func Update(
	ctx context.Context,
	conn repository.Querier,
	track *model.DbTrack,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"update track set data=$1 where id=$2", track.Data, track.ID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteById(ctx context.Context, conn repository.Querier, id int) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from track where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`select id,data from track`)

func scan(e *model.DbTrack, row pgx.Row) error {
	return row.Scan(&e.ID, &e.Data)
}
