// Package commands defines the lopctl CLI for inspecting and managing signed
// 1inch limit orders.
//
// Commands
//
//   - order hash <ref>         Print the EIP-712 order hash
//   - order show <ref>         Print the order, traits and extension
//   - extension decode <hex>   Split an encoded extension into its fields
//   - predicate check <ref>    Evaluate a predicate through checkPredicate
//   - status <ref>             Show remaining amount and invalidation state
//   - cancel <ref>             Cancel an order on-chain (maker only)
//   - orders list              List stored orders
//   - orders export <hash>     Write a stored order to a JSON file
//
// A <ref> is a path to a signed order file or the hash of an order in the
// order store.
package commands
