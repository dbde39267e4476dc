package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/castman/internal/model"
)

// PostgresPodcastRepo はPostgreSQLを使用したポッドキャストリポジトリ。
type PostgresPodcastRepo struct {
	db *sql.DB
}

// NewPostgresPodcastRepo はPostgresPodcastRepoを生成する。
func NewPostgresPodcastRepo(db *sql.DB) *PostgresPodcastRepo {
	return &PostgresPodcastRepo{db: db}
}

// podcastColumns はSELECT句で使用するカラムリスト。
const podcastColumns = `id, owner_provider_id, title, description,
	voice_type, voice_prompt, image_prompt,
	audio_storage_id, audio_url, audio_duration_seconds,
	image_storage_id, image_url,
	author_name, author_image_url, views, created_at, updated_at`

// scanPodcast は1行をmodel.Podcastに変換する。
// アセットスロットはNULL許容カラムのため、未設定はゼロ値のAssetRefになる。
func scanPodcast(scan func(dest ...any) error) (*model.Podcast, error) {
	p := &model.Podcast{}
	var (
		audioStorageID sql.NullString
		audioURL       sql.NullString
		audioDuration  sql.NullFloat64
		imageStorageID sql.NullString
		imageURL       sql.NullString
	)

	err := scan(&p.ID, &p.OwnerProviderID, &p.Title, &p.Description,
		&p.VoiceType, &p.VoicePrompt, &p.ImagePrompt,
		&audioStorageID, &audioURL, &audioDuration,
		&imageStorageID, &imageURL,
		&p.AuthorName, &p.AuthorImageURL, &p.Views, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Audio = model.AssetRef{StorageID: audioStorageID.String, URL: audioURL.String}
	p.AudioDuration = audioDuration.Float64
	p.Image = model.AssetRef{StorageID: imageStorageID.String, URL: imageURL.String}

	return p, nil
}

// Create はポッドキャストを作成する。
// アセットスロットは作成時点では常に空で、パイプライン完了時に埋められる。
func (r *PostgresPodcastRepo) Create(ctx context.Context, podcast *model.Podcast) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO podcasts (id, owner_provider_id, title, description,
			voice_type, voice_prompt, image_prompt,
			author_name, author_image_url, views, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		podcast.ID, podcast.OwnerProviderID, podcast.Title, podcast.Description,
		podcast.VoiceType, podcast.VoicePrompt, podcast.ImagePrompt,
		podcast.AuthorName, podcast.AuthorImageURL, podcast.Views,
		podcast.CreatedAt, podcast.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert podcast: %w", err)
	}
	return nil
}

// FindByID は指定IDのポッドキャストを取得する。見つからない場合はnilを返す。
func (r *PostgresPodcastRepo) FindByID(ctx context.Context, id string) (*model.Podcast, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts WHERE id = $1`, id)

	p, err := scanPodcast(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find podcast by ID: %w", err)
	}
	return p, nil
}

// ListIDsByOwner は指定所有者のポッドキャストID一覧を返す。
func (r *PostgresPodcastRepo) ListIDsByOwner(ctx context.Context, ownerProviderID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM podcasts WHERE owner_provider_id = $1 ORDER BY created_at, id`,
		ownerProviderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcast IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan podcast ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate podcast IDs: %w", err)
	}

	return ids, nil
}

// ListByOwner は指定所有者のポッドキャスト一覧を作成順で返す。
func (r *PostgresPodcastRepo) ListByOwner(ctx context.Context, ownerProviderID string) ([]*model.Podcast, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts WHERE owner_provider_id = $1 ORDER BY created_at, id`,
		ownerProviderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []*model.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan podcast: %w", err)
		}
		podcasts = append(podcasts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate podcasts: %w", err)
	}

	return podcasts, nil
}

// UpdateAuthorImage は1行の非正規化著者画像フィールドをパッチする。
// 対象行が既に削除されていても成功扱いとする（再適用可能な行単位ジョブ）。
func (r *PostgresPodcastRepo) UpdateAuthorImage(ctx context.Context, podcastID, imageURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE podcasts SET author_image_url = $2, updated_at = now() WHERE id = $1`,
		podcastID, imageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update author image: %w", err)
	}
	return nil
}

// SetAudioSlot は音声スロットにアセット参照と再生時間を書き込む。
// ストレージID・URL・再生時間は1つのUPDATEで原子的に書かれる。
func (r *PostgresPodcastRepo) SetAudioSlot(ctx context.Context, podcastID string, ref model.AssetRef, durationSeconds float64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE podcasts
		 SET audio_storage_id = $2, audio_url = $3, audio_duration_seconds = $4, updated_at = now()
		 WHERE id = $1`,
		podcastID, ref.StorageID, ref.URL, durationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to set audio slot: %w", err)
	}
	return requireRow(result, podcastID)
}

// SetImageSlot は画像スロットにアセット参照を書き込む。
func (r *PostgresPodcastRepo) SetImageSlot(ctx context.Context, podcastID string, ref model.AssetRef) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE podcasts
		 SET image_storage_id = $2, image_url = $3, updated_at = now()
		 WHERE id = $1`,
		podcastID, ref.StorageID, ref.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to set image slot: %w", err)
	}
	return requireRow(result, podcastID)
}

// IncrementViews は再生カウンタを1増やし、更新後の値を返す。
func (r *PostgresPodcastRepo) IncrementViews(ctx context.Context, podcastID string) (int64, error) {
	var views int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE podcasts SET views = views + 1, updated_at = now()
		 WHERE id = $1 RETURNING views`,
		podcastID,
	).Scan(&views)

	if err == sql.ErrNoRows {
		return 0, model.NewPodcastNotFoundError(podcastID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

// RepairAuthorImages は所有ユーザーの現在のimage_urlと食い違っている
// 非正規化著者画像を一括修復し、修復行数を返す。
// 所有ユーザーが削除済みの行は履歴スナップショットとしてそのまま残す。
func (r *PostgresPodcastRepo) RepairAuthorImages(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE podcasts p
		 SET author_image_url = u.image_url, updated_at = now()
		 FROM users u
		 WHERE u.provider_user_id = p.owner_provider_id
		   AND p.author_image_url <> u.image_url`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to repair author images: %w", err)
	}
	repaired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return repaired, nil
}

// requireRow はUPDATEが1行も変更しなかった場合にPODCAST_NOT_FOUNDを返す。
func requireRow(result sql.Result, podcastID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewPodcastNotFoundError(podcastID)
	}
	return nil
}

// compile-time interface check
var _ PodcastRepository = (*PostgresPodcastRepo)(nil)
