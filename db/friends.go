package db

import (
	"github.com/teal-fm/beacon/models"
)

// PutFriend saves or overwrites one friendship edge under the owner.
func (db *DB) PutFriend(ownerUID string, friend models.FriendRef) error {
	_, err := db.Exec(`
	INSERT INTO friends (owner_uid, uid, nickname)
	VALUES (?, ?, ?)
	ON CONFLICT(owner_uid, uid) DO UPDATE SET nickname = excluded.nickname`,
		ownerUID, friend.UID, friend.Nickname)

	if err != nil {
		return err
	}

	db.notifyFriends(ownerUID)
	return nil
}

// DeleteFriend removes one friendship edge under the owner.
func (db *DB) DeleteFriend(ownerUID, friendUID string) error {
	_, err := db.Exec(`DELETE FROM friends WHERE owner_uid = ? AND uid = ?`, ownerUID, friendUID)
	if err != nil {
		return err
	}

	db.notifyFriends(ownerUID)
	return nil
}

// GetFriends returns the owner's friend list ordered by nickname.
func (db *DB) GetFriends(ownerUID string) ([]models.FriendRef, error) {
	rows, err := db.Query(`
	SELECT uid, nickname
	FROM friends
	WHERE owner_uid = ?
	ORDER BY nickname ASC`, ownerUID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.FriendRef

	for rows.Next() {
		var f models.FriendRef
		if err := rows.Scan(&f.UID, &f.Nickname); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}

	return friends, rows.Err()
}
