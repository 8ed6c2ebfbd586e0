package cart

// Resolution names the side the reconciliation policy chose.
type Resolution int

const (
	// ResolutionNone means neither copy needs to move: both were empty.
	ResolutionNone Resolution = iota
	// ResolutionAdoptRemote means the remote cart wins and must be
	// persisted locally.
	ResolutionAdoptRemote
	// ResolutionAdoptLocal means the local cart wins and must be pushed to
	// the remote store, which was behind.
	ResolutionAdoptLocal
)

// Reconcile chooses deterministically between a local and a remote cart
// snapshot. The policy never merges item lists, it only picks a side:
//
//	remote non-empty, local empty  -> remote
//	remote empty, local non-empty  -> local, remote needs the push
//	both non-empty                 -> remote (the account-level record is
//	                                  authoritative across devices)
//	both empty                     -> nothing to do
//
// Known data-loss edge: when both are non-empty, items added locally after
// the remote snapshot was captured are discarded with the rest of the local
// cart. This is the documented behaviour, kept deterministic on purpose
// rather than guessing at a merge heuristic.
func Reconcile(local, remote State) (State, Resolution) {
	switch {
	case remote.IsEmpty() && local.IsEmpty():
		return normalize(local), ResolutionNone
	case local.IsEmpty():
		return normalize(remote), ResolutionAdoptRemote
	case remote.IsEmpty():
		return normalize(local), ResolutionAdoptLocal
	default:
		return normalize(remote), ResolutionAdoptRemote
	}
}
