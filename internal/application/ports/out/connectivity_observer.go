package out

type ConnectivityObserver interface {
	IsOnline() bool
	// Subscribe registers listener for online/offline transitions and
	// returns a function that removes it.
	Subscribe(listener func(online bool)) (unsubscribe func())
}
