package dictionary

import "github.com/roach88/noderepo/internal/ir"

// Namespaces of the bootstrap models.
const (
	SystemNamespace  = "http://noderepo.dev/model/system/1.0"
	ContentNamespace = "http://noderepo.dev/model/content/1.0"
)

// Well-known classes, properties and associations the node service relies on.
var (
	TypeBase      = ir.NewQName(SystemNamespace, "base")
	TypeContainer = ir.NewQName(SystemNamespace, "container")
	TypeStoreRoot = ir.NewQName(SystemNamespace, "store_root")

	AspectRoot           = ir.NewQName(SystemNamespace, "aspect_root")
	AspectTemporary      = ir.NewQName(SystemNamespace, "temporary")
	AspectArchived       = ir.NewQName(SystemNamespace, "archived")
	AspectArchivedAssocs = ir.NewQName(SystemNamespace, "archivedAssocs")

	PropArchivedOriginalParentAssoc = ir.NewQName(SystemNamespace, "archivedOriginalParentAssoc")
	PropArchivedParentAssocs        = ir.NewQName(SystemNamespace, "archivedParentAssocs")
	PropArchivedChildAssocs         = ir.NewQName(SystemNamespace, "archivedChildAssocs")
	PropArchivedSourceAssocs        = ir.NewQName(SystemNamespace, "archivedSourceAssocs")
	PropArchivedTargetAssocs        = ir.NewQName(SystemNamespace, "archivedTargetAssocs")

	AssocChildren = ir.NewQName(SystemNamespace, "children")

	TypeCMObject      = ir.NewQName(ContentNamespace, "cmobject")
	TypeFolder        = ir.NewQName(ContentNamespace, "folder")
	TypeContent       = ir.NewQName(ContentNamespace, "content")
	AspectTitled      = ir.NewQName(ContentNamespace, "titled")
	AspectVersionable = ir.NewQName(ContentNamespace, "versionable")
	PropName          = ir.NewQName(ContentNamespace, "name")
	PropTitle         = ir.NewQName(ContentNamespace, "title")
	PropDescription   = ir.NewQName(ContentNamespace, "description")
	AssocContains     = ir.NewQName(ContentNamespace, "contains")
)
