//nolint:dupl,funlen,errcheck //ok for this test code
package track

import (
	"context"
	"log"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gotest.tools/v3/assert"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	tcpg "github.com/enduroplan/fueltrace-service-go/testsupport/tcpostgres"
)

func initTestDb() *pgxpool.Pool {
	pool := tcpg.SetupTestDb()
	tcpg.ClearAllTables(pool)
	return pool
}

func createSampleEntry(db *pgxpool.Pool) *model.DbTrack {
	track := &model.DbTrack{
		ID:   1,
		Data: model.TrackInfo{ID: 1, Name: "testtrack"},
	}
	err := pgx.BeginFunc(context.Background(), db, func(tx pgx.Tx) error {
		err := Create(context.Background(), tx.Conn(), track)
		return err
	})
	if err != nil {
		log.Fatalf("createSampleEntry: %v\n", err)
	}

	return track
}

func TestCreate(t *testing.T) {
	pool := initTestDb()
	type args struct {
		track *model.DbTrack
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "new entry",
			args: args{track: &model.DbTrack{ID: 2, Data: model.TrackInfo{}}},
		},
		{
			name:    "duplicate",
			args:    args{track: &model.DbTrack{ID: 1, Data: model.TrackInfo{}}},
			wantErr: true,
		},
	}
	createSampleEntry(pool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pool.AcquireFunc(context.Background(), func(c *pgxpool.Conn) error {
				return Create(context.Background(), c.Conn(), tt.args.track)
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("Create error = %v, wantErr %v",
					err, tt.wantErr)
			}
		})
	}
}

func TestEnsureTrack(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	// existing id must not produce a duplicate error
	err := EnsureTrack(ctx, pool, sample)
	assert.NilError(t, err)

	// unknown id gets created
	err = EnsureTrack(ctx, pool, &model.DbTrack{ID: 5, Data: model.TrackInfo{ID: 5}})
	assert.NilError(t, err)
	got, err := LoadById(ctx, pool, 5)
	assert.NilError(t, err)
	assert.Equal(t, got.ID, 5)
}

func TestLoadById(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	type args struct {
		id int
	}
	tests := []struct {
		name    string
		args    args
		want    *model.DbTrack
		wantErr bool
	}{
		{
			name: "existing entry",
			args: args{id: 1},
			want: sample,
		},
		{
			name:    "unknown entry",
			args:    args{id: 2},
			wantErr: true,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool.AcquireFunc(context.Background(), func(c *pgxpool.Conn) error {
				got, err := LoadById(context.Background(), c.Conn(), tt.args.id)
				if (err != nil) != tt.wantErr {
					t.Errorf("LoadById() error = %v, wantErr %v", err, tt.wantErr)
					return err
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("LoadById() not correct: %s", diff)
				}
				return nil
			})
		})
	}
}

func TestLoadAll(t *testing.T) {
	pool := initTestDb()
	createSampleEntry(pool)
	ctx := context.Background()
	Create(ctx, pool, &model.DbTrack{ID: 3, Data: model.TrackInfo{ID: 3}})

	got, err := LoadAll(ctx, pool)
	assert.NilError(t, err)
	ids := make([]int, 0)
	for _, v := range got {
		ids = append(ids, v.ID)
	}
	assert.DeepEqual(t, ids, []int{1, 3})
}

func TestUpdate(t *testing.T) {
	pool := initTestDb()
	sample := createSampleEntry(pool)
	ctx := context.Background()

	sample.Data.Name = "changed"
	num, err := Update(ctx, pool, sample)
	assert.NilError(t, err)
	assert.Equal(t, num, 1)

	got, err := LoadById(ctx, pool, sample.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Data.Name, "changed")
}

func TestDeleteById(t *testing.T) {
	db := initTestDb()
	sample := createSampleEntry(db)

	type args struct {
		id int
	}
	tests := []struct {
		name string

		args    args
		want    int
		wantErr bool
	}{
		{
			name: "delete_existing",
			args: args{id: sample.ID},
			want: 1,
		},
		{
			name: "delete_non_existing",
			args: args{id: -1}, // doesn't exist
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.AcquireFunc(context.Background(), func(c *pgxpool.Conn) error {
				got, err := DeleteById(context.Background(), c.Conn(), tt.args.id)
				if (err != nil) != tt.wantErr {
					t.Errorf("DeleteById() error = %v, wantErr %v", err, tt.wantErr)
					return nil
				}
				if got != tt.want {
					t.Errorf("DeleteById() = %v, want %v", got, tt.want)
				}
				return nil
			})
		})
	}
}
