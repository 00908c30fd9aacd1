package clientcache

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Update несёт новый снимок доступа для пользователя.
type Update struct {
	UserUID     string
	Entitlement models.ClientEntitlement
	Err         error
}

// Watcher перезапрашивает статус при смене пользователя, при возврате
// со страницы оплаты и с фиксированным интервалом.
type Watcher struct {
	cache      *Cache
	interval   time.Duration
	identities chan Identity
	kicks      chan struct{}
	updates    chan Update
	log        *slog.Logger
}

// NewWatcher создаёт новый Watcher.
func NewWatcher(c *Cache, interval time.Duration, log *slog.Logger) *Watcher {
	return &Watcher{
		cache:      c,
		interval:   interval,
		identities: make(chan Identity, 1),
		kicks:      make(chan struct{}, 1),
		updates:    make(chan Update, 1),
		log:        log,
	}
}

// Updates возвращает канал снимков. Канал закрывается после завершения Run.
// Если читатель не успевает, в канале остаётся только последний снимок.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// SetIdentity сообщает о смене пользователя. Пустой UserUID означает выход.
func (w *Watcher) SetIdentity(id Identity) {
	for {
		select {
		case w.identities <- id:
			return
		default:
			select {
			case <-w.identities:
			default:
			}
		}
	}
}

// Navigated сообщает о переходе. При возврате со страницы оплаты статус
// запрашивается сразу.
func (w *Watcher) Navigated(u *url.URL) {
	if CheckoutReturn(u) {
		w.Refresh()
	}
}

// Refresh запрашивает внеочередное обновление.
func (w *Watcher) Refresh() {
	select {
	case w.kicks <- struct{}{}:
	default:
	}
}

// CheckoutReturn сообщает, содержит ли адрес признак возврата с оплаты.
func CheckoutReturn(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Get("reference") != "" || q.Has("upgraded")
}

// Run обрабатывает события до отмены ctx.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.updates)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var current Identity
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.identities:
			current = id
			if current.UserUID == "" {
				w.publish(Update{Entitlement: None()})
				continue
			}
			w.refresh(ctx, current)
		case <-w.kicks:
			if current.UserUID != "" {
				w.refresh(ctx, current)
			}
		case <-ticker.C:
			if current.UserUID != "" {
				w.refresh(ctx, current)
			}
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, id Identity) {
	ent, err := w.cache.Resolve(ctx, id)
	if err != nil {
		w.log.Warn("entitlement refresh failed", sl.UserUID(id.UserUID), sl.Err(err))
	}
	w.publish(Update{UserUID: id.UserUID, Entitlement: ent, Err: err})
}

func (w *Watcher) publish(u Update) {
	for {
		select {
		case w.updates <- u:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}
