// Package packages discovers the packages of an Ouranos installation.
//
// Every directory under <root>/packages is a package: a git working tree with
// its own release tags. Exactly one of them is the core package; the rest are
// dependents. Discovery also decides each package's update strategy:
//
//   - the core package is always updated by ouranosctl itself
//   - a dependent with a hook (ouranos-package.toml or scripts/update.sh)
//     runs that hook after its checkout
//   - any other dependent is updated by ouranosctl alone
//
// Packages are returned core first, dependents ordered by name.
package packages
