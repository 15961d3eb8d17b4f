package timeentry

import "sync"

// userLocker はユーザー単位の排他制御を提供する。
// 同一ユーザーに対する状態遷移（確認と書き込み）を直列化し、
// 異なるユーザー同士は互いにブロックしない。
// 参照カウントが0になったロックはマップから取り除く。
type userLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocker() *userLocker {
	return &userLocker{locks: make(map[string]*refLock)}
}

// Lock は指定ユーザーのロックを取得し、解放関数を返す。
func (l *userLocker) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[userID]
	if !ok {
		rl = &refLock{}
		l.locks[userID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// size は保持中のロック数を返す（テスト用）。
func (l *userLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
