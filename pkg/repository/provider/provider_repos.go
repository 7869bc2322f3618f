//nolint:whitespace // can't make both editor and linter happy
package provider

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/repository"
)

func Create(
	ctx context.Context,
	conn repository.Querier,
	entry *model.DbProvider,
) (*model.DbProvider, error) {
	row := conn.QueryRow(ctx, `
	insert into provider (name, api_key_hash, active)
	values ($1,$2,$3)
	returning id,record_stamp
	`, entry.Name, entry.APIKeyHash, entry.Active)

	if err := row.Scan(&entry.ID, &entry.RecordStamp); err != nil {
		return nil, err
	}

	return entry, nil
}

func LoadById(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
) (*model.DbProvider, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where id=$1", selector), id)
	var item model.DbProvider
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

func LoadByKeyHash(
	ctx context.Context,
	conn repository.Querier,
	keyHash string,
) (*model.DbProvider, error) {
	row := conn.QueryRow(ctx,
		fmt.Sprintf("%s where api_key_hash=$1", selector), keyHash)
	var item model.DbProvider
	if err := scan(&item, row); err != nil {
		return nil, err
	}
	return &item, nil
}

func LoadAll(
	ctx context.Context,
	conn repository.Querier,
) ([]*model.DbProvider, error) {
	rows, err := conn.Query(ctx,
		fmt.Sprintf("%s order by name asc", selector))
	if err != nil {
		return nil, err
	}
	ret := make([]*model.DbProvider, 0)
	for rows.Next() {
		var item model.DbProvider
		if err := scan(&item, rows); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

func SetActive(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
	active bool,
) (int, error) {
	cmdTag, err := conn.Exec(ctx,
		"update provider set active=$1 where id=$2", active, id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// deletes an entry from the database, returns number of rows deleted.
func DeleteById(
	ctx context.Context,
	conn repository.Querier,
	id uuid.UUID,
) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from provider where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`
select id,name,api_key_hash,active,record_stamp from provider
`)

func scan(e *model.DbProvider, row pgx.Row) error {
	return row.Scan(&e.ID, &e.Name, &e.APIKeyHash, &e.Active, &e.RecordStamp)
}
