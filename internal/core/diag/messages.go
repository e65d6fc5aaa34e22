package diag

// Message templates. Parameters are substituted positionally.
const (
	MsgNoContracts           = "binding declares no contracts"
	MsgMarkerContract        = "contract {0} is a bare generic marker"
	MsgMarkerRequest         = "cannot resolve bare generic marker {0}"
	MsgMarkerArgument        = "argument {0} cannot have generic type {1}"
	MsgContradictoryBinding  = "binding for {0} is contradictory: {1}"
	MsgAsyncFactory          = "factory {0} is asynchronous, which is not supported"
	MsgContextMisuse         = "factory {0} uses its context outside a recognised injection call"
	MsgNoAccessibleCtor      = "{0} has no accessible constructor"
	MsgAmbiguousOrdinal      = "{0} has several constructors with ordinal {1}"
	MsgDuplicateRoot         = "root {0} is already declared"
	MsgUnresolved            = "unable to resolve {0} in {1}"
	MsgUnresolvedRoot        = "unable to resolve {0} for root {1}"
	MsgAmbiguous             = "{0} matches several tagged bindings: {1}"
	MsgTooDeep               = "unable to resolve {0}: dependency chain exceeds depth {1}"
	MsgCycle                 = "cyclic dependency {0}"
	MsgUnorderable           = "plan for root {0} cannot be ordered: {1}"
	MsgStaticRootLifetime    = "{0} has {1} lifetime and cannot be resolved from static root {2}"
	MsgSingletonScoped       = "singleton {0} depends on scoped {1}"
	MsgCannotInfer           = "cannot infer generic {0} of {1} from {2}"
	MsgOverridden            = "binding for {0} overrides an earlier binding at {1}"
	MsgUnused                = "binding for {0} is never used"
	MsgNotImplemented        = "{0} does not implement contract {1}"
	MsgGenericDynamicResolve = "generic root {0} cannot be resolved by type at run time"
	MsgInvalidType           = "invalid type expression {0}: {1}"
	MsgImplementationCount   = "binding must declare exactly one of type, factory, value or argument"
)
