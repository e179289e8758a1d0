package quiz

import "github.com/mroshb/quiz_bot/internal/models"

// Roster holds members and admins in insertion order. It is not safe for concurrent use;
// the owning Session serializes access.
type Roster struct {
	members     []int64
	admins      []int64
	participant map[int64]*models.Participant
}

func NewRoster() *Roster {
	return &Roster{participant: make(map[int64]*models.Participant)}
}

// Add inserts p unless its id is already known. Admin status of a known id never changes.
func (r *Roster) Add(p models.Participant) bool {
	if _, ok := r.participant[p.ID]; ok {
		return false
	}
	cp := p
	r.participant[p.ID] = &cp
	if p.IsAdmin {
		r.admins = append(r.admins, p.ID)
	} else {
		r.members = append(r.members, p.ID)
	}
	return true
}

// Remove deletes a non-admin member. Admins are never removed.
func (r *Roster) Remove(id int64) bool {
	p, ok := r.participant[id]
	if !ok || p.IsAdmin {
		return false
	}
	delete(r.participant, id)
	for i, m := range r.members {
		if m == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	return true
}

func (r *Roster) Get(id int64) (*models.Participant, bool) {
	p, ok := r.participant[id]
	return p, ok
}

func (r *Roster) IsAdmin(id int64) bool {
	p, ok := r.participant[id]
	return ok && p.IsAdmin
}

func (r *Roster) IsMember(id int64) bool {
	p, ok := r.participant[id]
	return ok && !p.IsAdmin
}

// Len is the number of non-admin members.
func (r *Roster) Len() int {
	return len(r.members)
}

// Members returns copies of the non-admin members in insertion order.
func (r *Roster) Members() []models.Participant {
	return r.copies(r.members)
}

func (r *Roster) Admins() []models.Participant {
	return r.copies(r.admins)
}

// MemberIDs returns the non-admin ids in insertion order.
func (r *Roster) MemberIDs() []int64 {
	return append([]int64(nil), r.members...)
}

func (r *Roster) copies(ids []int64) []models.Participant {
	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.participant[id])
	}
	return out
}
