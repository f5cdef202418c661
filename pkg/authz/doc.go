// Package authz resolves effective access for a (principal, resource) pair.
//
// Resolution layers, outermost first: tenant isolation (a resource outside
// the principal's organization is reported as not found, never as
// forbidden), platform super-admin bypass, organization-admin bypass,
// owner/assignee shortcuts, and finally per-resource grant rows with
// VIEW/EDIT/DELETE floors.
//
// The one deliberate asymmetry: a case's creator or assignee may VIEW the
// case's documents without a document grant, but EDIT/DELETE on a document
// always requires upload ownership or an explicit document-level grant.
package authz
