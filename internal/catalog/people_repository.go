package catalog

import "context"

// PeopleRepository persists Person rows and their MediaPeople associations.
// Silent: cast/crew changes do not warrant their own event type, they ride
// along with the owning MediaItem's MediaUpdated.
type PeopleRepository struct {
	cat *Catalog
}

func NewPeopleRepository(cat *Catalog) *PeopleRepository {
	return &PeopleRepository{cat: cat}
}

func (r *PeopleRepository) UpsertPerson(ctx context.Context, p Person) error {
	_, err := r.cat.db.ExecContext(ctx, `
		INSERT INTO people (id, name, image_url) VALUES (?,?,?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, image_url = excluded.image_url`,
		p.ID, p.Name, p.ImageURL,
	)
	return err
}

// SetCredits replaces every MediaPeople row for mediaItemID with credits.
func (r *PeopleRepository) SetCredits(ctx context.Context, mediaItemID string, credits []MediaPeople) error {
	tx, err := r.cat.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_people WHERE media_item_id = ?`, mediaItemID); err != nil {
		return err
	}
	for _, c := range credits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO media_people (media_item_id, person_id, person_type, role, sort_order)
			VALUES (?,?,?,?,?)`,
			mediaItemID, c.PersonID, string(c.PersonType), c.Role, c.SortOrder,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PeopleRepository) FindCredits(ctx context.Context, mediaItemID string) ([]MediaPeople, error) {
	rows, err := r.cat.db.QueryContext(ctx, `
		SELECT media_item_id, person_id, person_type, role, sort_order
		FROM media_people WHERE media_item_id = ? ORDER BY sort_order`, mediaItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MediaPeople
	for rows.Next() {
		var mp MediaPeople
		var personType string
		if err := rows.Scan(&mp.MediaItemID, &mp.PersonID, &personType, &mp.Role, &mp.SortOrder); err != nil {
			return nil, err
		}
		mp.PersonType = PersonType(personType)
		out = append(out, mp)
	}
	return out, rows.Err()
}
