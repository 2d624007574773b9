package entity

// Field names shared by generators, the coordinator and the store. Relationship
// fields hold the live id (int64) of their target.
const (
	// Relationships.
	FieldSnapshot            = "snapshot"
	FieldExtendsClass        = "extends_class"
	FieldTopLevelClass       = "top_level_class"
	FieldClass               = "class"
	FieldTrigger             = "trigger"
	FieldImplementationClass = "implementation_class"
	FieldImplementsInterface = "implements_interface"
	FieldReferencedMethod    = "referenced_method"
	FieldUsedByClass         = "used_by_class"
	FieldUsedByTrigger       = "used_by_trigger"
	FieldUsedByMethod        = "used_by_method"
	FieldMethod              = "method"
	FieldDeclaration         = "declaration"

	// Snapshot.
	FieldOrgID        = "org_id"
	FieldOrgNamespace = "org_namespace"
	FieldIsLatest     = "is_latest"
	FieldRunID        = "run_id"
	FieldContainerID  = "container_id"
	FieldCreatedAt    = "created_at"

	// Class and trigger.
	FieldClassID              = "class_id"
	FieldClassName            = "class_name"
	FieldTriggerID            = "trigger_id"
	FieldTriggerName          = "trigger_name"
	FieldFullName             = "full_name"
	FieldNamespace            = "namespace"
	FieldExtendsFullName      = "extends_full_name"
	FieldImplements           = "implements"
	FieldSymbolTableAvailable = "symbol_table_available"
	FieldTopLevelFullName     = "top_level_full_name"
	FieldIsTopLevel           = "is_top_level"
	FieldMethodCount          = "method_count"
	FieldIsScheduledJob       = "is_scheduled_job"
	FieldIsActive             = "is_active"
	FieldSourceDigest         = "source_digest"

	// Shared by classes and methods.
	FieldIsTest         = "is_test"
	FieldModifiers      = "modifiers"
	FieldAccessModifier = "access_modifier"
	FieldScore          = "score"

	// Method.
	FieldMethodName    = "method_name"
	FieldSignature     = "signature"
	FieldReturnType    = "return_type"
	FieldIsConstructor = "is_constructor"
	FieldIsOverloaded  = "is_overloaded"
	FieldParamCount    = "param_count"

	// Source location (methods, properties, references).
	FieldLine   = "line"
	FieldColumn = "column"

	// Property.
	FieldPropertyName = "property_name"
	FieldPropertyType = "property_type"

	// Method reference.
	FieldReferencedClassName  = "referenced_class_name"
	FieldReferencedNamespace  = "referenced_namespace"
	FieldReferencedMethodName = "referenced_method_name"
	FieldIsExternal           = "is_external"

	// Declaration and method declaration.
	FieldDeclarationType = "declaration_type"
)

// Declaration types.
const (
	DeclarationModifier   = "Modifier"
	DeclarationAnnotation = "Annotation"
)

// Content key tags. A kind can be keyed under more than one tag (classes and
// inner classes, constructors and methods).
const (
	TagClass             = "ApexClass"
	TagInnerClass        = "InnerClass"
	TagTrigger           = "ApexTrigger"
	TagConstructor       = "Constructor"
	TagMethod            = "Method"
	TagProperty          = "Property"
	TagInterfaceImpl     = "InterfaceImpl"
	TagMethodRef         = "MethodRef"
	TagLocalMethodRef    = "LocalMethodRef"
	TagMethodDeclaration = "Declaration"
	TagSnapshot          = "Snapshot"
)

// MaxScore bounds every reference score.
const MaxScore = 100.0
