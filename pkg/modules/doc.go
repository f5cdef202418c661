// Package modules implements subscription-based feature gating. An
// organization's entitlement is the module set of its assigned package,
// synced as a full replace when the package changes. Employees need an
// additional per-employee grant; organization admins inherit everything
// the organization is entitled to.
package modules
